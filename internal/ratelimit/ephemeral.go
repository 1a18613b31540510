package ratelimit

import (
	"sync"

	"github.com/bimmatch/guard/internal/clock"
	"github.com/bimmatch/guard/internal/models"
)

// EphemeralLimiter keeps attempt records in process memory. It is a soft gate:
// CheckOnly and RecordAttempt are separate calls, so concurrent callers can
// all pass CheckOnly before any of them commits. Never use it as the only
// line of defense.
type EphemeralLimiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]*ephemeralEntry
}

type ephemeralEntry struct {
	record    *models.RateLimitRecord
	policy    models.RateLimitPolicy
	hasPolicy bool
}

// NewEphemeralLimiter creates an empty limiter
func NewEphemeralLimiter(clk clock.Clock) *EphemeralLimiter {
	return &EphemeralLimiter{
		clock:   clk,
		entries: make(map[string]*ephemeralEntry),
	}
}

// CheckOnly reports whether one more attempt for key would be allowed under
// policy. It does not record anything about the attempt itself.
func (l *EphemeralLimiter) CheckOnly(key string, policy models.RateLimitPolicy) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &ephemeralEntry{}
		l.entries[key] = entry
	}
	entry.policy = policy
	entry.hasPolicy = true

	return Evaluate(entry.record, policy, l.clock.Now()).Allowed
}

// RecordAttempt commits one attempt for key, using the policy most recently
// passed to CheckOnly for that key.
func (l *EphemeralLimiter) RecordAttempt(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry, ok := l.entries[key]
	if !ok {
		entry = &ephemeralEntry{}
		l.entries[key] = entry
	}

	if !entry.hasPolicy {
		if entry.record == nil {
			entry.record = &models.RateLimitRecord{FirstAttempt: now}
		}
		entry.record.Attempts++
		entry.record.LastAttempt = now
		return
	}

	next := Evaluate(entry.record, entry.policy, now).Record
	entry.record = &next
}

// Prune drops entries whose window and block have both elapsed and returns
// how many were removed. Entries without a known policy are kept.
func (l *EphemeralLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for key, entry := range l.entries {
		if !entry.hasPolicy {
			continue
		}
		if entry.record == nil {
			delete(l.entries, key)
			removed++
			continue
		}
		if entry.record.BlockedUntil != nil && entry.record.BlockedUntil.After(now) {
			continue
		}
		if now.Sub(entry.record.FirstAttempt) >= entry.policy.Window {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (l *EphemeralLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
