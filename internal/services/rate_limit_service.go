package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bimmatch/guard/internal/clock"
	"github.com/bimmatch/guard/internal/models"
	"github.com/bimmatch/guard/internal/ratelimit"
	"github.com/bimmatch/guard/pkg/logger"
)

// DocumentStore is a key-addressable persistent store. Get returns
// models.ErrNotFound when nothing is stored under key.
type DocumentStore interface {
	Get(ctx context.Context, key string) (models.Document, error)
	Put(ctx context.Context, key string, doc models.Document) error
	Delete(ctx context.Context, key string) error
}

const rateLimitKeyPrefix = "ratelimit:"

// RateLimitService is the persisted limiter. One record per key is shared by
// every caller of that key; concurrent writers race and the last one wins.
type RateLimitService struct {
	store    DocumentStore
	policies *ratelimit.PolicySet
	clock    clock.Clock
	logger   *slog.Logger
	audit    *logger.AuditLogger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store DocumentStore, policies *ratelimit.PolicySet, clk clock.Clock, logger *slog.Logger, audit *logger.AuditLogger) *RateLimitService {
	return &RateLimitService{
		store:    store,
		policies: policies,
		clock:    clk,
		logger:   logger,
		audit:    audit,
	}
}

// Check counts one attempt for key and reports whether it is allowed.
// override, when non-nil, replaces the action's configured policy.
// Only invalid input produces an error; store failures fail open.
func (s *RateLimitService) Check(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error) {
	policy, err := s.resolve(key, action, override)
	if err != nil {
		return models.RateLimitResult{}, err
	}

	record, err := s.load(ctx, key)
	if err != nil {
		return s.failOpen("check", key, policy, err), nil
	}

	decision := ratelimit.Evaluate(record, policy, s.clock.Now())

	if err := s.store.Put(ctx, rateLimitKeyPrefix+key, decision.Record.ToDocument()); err != nil {
		return s.failOpen("check", key, policy, err), nil
	}

	if !decision.Allowed {
		s.logger.Warn("rate limit exceeded",
			slog.String("key", logger.SanitizedKey(key)),
			slog.String("action", string(action)),
			slog.Int("attempts", decision.Record.Attempts),
			slog.Duration("retry_after", decision.RetryAfter))
		if s.audit != nil {
			s.audit.LogRateLimitDenied(key, string(action), decision.RetryAfter)
		}
	}

	return decision.Result(), nil
}

// Info evaluates the next attempt for key without storing anything
func (s *RateLimitService) Info(ctx context.Context, key string, action models.Action) (models.RateLimitResult, error) {
	policy, err := s.resolve(key, action, nil)
	if err != nil {
		return models.RateLimitResult{}, err
	}

	record, err := s.load(ctx, key)
	if err != nil {
		return s.failOpen("info", key, policy, err), nil
	}

	return ratelimit.Evaluate(record, policy, s.clock.Now()).Result(), nil
}

// Reset clears the record for key. Unlike Check, store errors are returned
// so the administrator knows the reset did not happen.
func (s *RateLimitService) Reset(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return models.ErrInvalidKey
	}

	if err := s.store.Delete(ctx, rateLimitKeyPrefix+key); err != nil {
		s.logger.Error("failed to reset rate limit",
			slog.String("key", logger.SanitizedKey(key)),
			slog.Any("error", err))
		return fmt.Errorf("reset %s: %w", logger.SanitizedKey(key), err)
	}

	s.logger.Info("rate limit reset", slog.String("key", logger.SanitizedKey(key)))
	return nil
}

func (s *RateLimitService) resolve(key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitPolicy, error) {
	if strings.TrimSpace(key) == "" {
		return models.RateLimitPolicy{}, models.ErrInvalidKey
	}

	policy, err := s.policies.Resolve(action)
	if err != nil {
		return models.RateLimitPolicy{}, err
	}

	if override != nil {
		if err := ratelimit.ValidatePolicy(*override); err != nil {
			return models.RateLimitPolicy{}, err
		}
		policy = *override
	}

	return policy, nil
}

// load returns nil for a missing record. A record that cannot be decoded is
// treated as missing and will be overwritten by the next write.
func (s *RateLimitService) load(ctx context.Context, key string) (*models.RateLimitRecord, error) {
	doc, err := s.store.Get(ctx, rateLimitKeyPrefix+key)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	record, err := models.RecordFromDocument(doc)
	if err != nil {
		s.logger.Warn("discarding unreadable rate limit record",
			slog.String("key", logger.SanitizedKey(key)),
			slog.Any("error", err))
		return nil, nil
	}
	return record, nil
}

// failOpen keeps the product available while the store is failing
func (s *RateLimitService) failOpen(op, key string, policy models.RateLimitPolicy, err error) models.RateLimitResult {
	s.logger.Error("rate limit store error, failing open",
		slog.String("op", op),
		slog.String("key", logger.SanitizedKey(key)),
		slog.Any("error", err))

	return models.RateLimitResult{
		Allowed:           true,
		RemainingAttempts: policy.MaxAttempts,
	}
}
