package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bimmatch/guard/internal/models"
)

// RedisStore keeps each document as a JSON string under prefix+key
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (models.Document, error) {
	body, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", models.ErrStoreUnavailable, key, err)
	}
	return decodeDocument(body)
}

// Put replaces the document unconditionally. No TTL is set; expiry is decided
// by the reader from the document's own timestamps.
func (s *RedisStore) Put(ctx context.Context, key string, doc models.Document) error {
	body, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, body, 0).Err(); err != nil {
		return fmt.Errorf("%w: put %s: %v", models.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", models.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
