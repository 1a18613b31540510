package repositories

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimmatch/guard/internal/models"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return NewRedisStore(rdb, "bimmatch:"), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	record := sampleRecord()

	require.NoError(t, store.Put(ctx, "ratelimit:login:a@b.c", record.ToDocument()))
	assert.True(t, mr.Exists("bimmatch:ratelimit:login:a@b.c"))

	doc, err := store.Get(ctx, "ratelimit:login:a@b.c")
	require.NoError(t, err)
	got, err := models.RecordFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Attempts)
	assert.True(t, record.LastAttempt.Equal(got.LastAttempt))

	require.NoError(t, store.Delete(ctx, "ratelimit:login:a@b.c"))
	_, err = store.Get(ctx, "ratelimit:login:a@b.c")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisStore_GetMissing(t *testing.T) {
	store, _ := newRedisStore(t)

	_, err := store.Get(context.Background(), "ratelimit:missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("bimmatch:ratelimit:bad", "{not json"))

	_, err := store.Get(context.Background(), "ratelimit:bad")
	assert.ErrorIs(t, err, models.ErrCorruptRecord)
}

func TestRedisStore_UnavailableServer(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Get(ctx, "ratelimit:k")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	err = store.Put(ctx, "ratelimit:k", models.Document{"attempts": 1})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	assert.Error(t, store.HealthCheck(ctx))
}
