// Package ratelimit holds the attempt-window algorithm shared by the persisted
// and in-memory limiters, plus the per-action policy table.
//
// Windows are anchored at the first attempt and reset wholesale once they
// elapse. A caller can therefore get up to 2×MaxAttempts through across a
// window boundary; this matches the behavior clients already depend on.
package ratelimit

import (
	"time"

	"github.com/bimmatch/guard/internal/models"
)

// Decision is the outcome of evaluating one attempt against a record
type Decision struct {
	Allowed    bool
	Record     models.RateLimitRecord
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Evaluate decides whether one more attempt fits the policy and returns the
// record that should be stored afterwards. A nil record is a fresh window.
// Evaluate performs no I/O.
func Evaluate(record *models.RateLimitRecord, policy models.RateLimitPolicy, now time.Time) Decision {
	if record == nil {
		record = &models.RateLimitRecord{FirstAttempt: now, LastAttempt: now}
	}

	if record.BlockedUntil != nil && record.BlockedUntil.After(now) {
		return Decision{
			Allowed:    false,
			Record:     *record,
			RetryAfter: record.BlockedUntil.Sub(now),
			ResetAt:    *record.BlockedUntil,
		}
	}

	// A lapsed block starts a fresh window just like a lapsed window does.
	if record.BlockedUntil != nil || now.Sub(record.FirstAttempt) >= policy.Window {
		return Decision{
			Allowed: true,
			Record: models.RateLimitRecord{
				Attempts:     1,
				FirstAttempt: now,
				LastAttempt:  now,
			},
			Remaining: policy.MaxAttempts - 1,
			ResetAt:   now.Add(policy.Window),
		}
	}

	next := *record
	next.Attempts++
	next.LastAttempt = now

	if next.Attempts > policy.MaxAttempts {
		// Without a block duration the key stays denied until the window ends.
		if policy.BlockDuration <= 0 {
			windowEnd := next.FirstAttempt.Add(policy.Window)
			return Decision{
				Allowed:    false,
				Record:     next,
				RetryAfter: windowEnd.Sub(now),
				ResetAt:    windowEnd,
			}
		}

		blockedUntil := now.Add(policy.BlockDuration)
		next.BlockedUntil = &blockedUntil
		return Decision{
			Allowed:    false,
			Record:     next,
			RetryAfter: policy.BlockDuration,
			ResetAt:    blockedUntil,
		}
	}

	return Decision{
		Allowed:   true,
		Record:    next,
		Remaining: policy.MaxAttempts - next.Attempts,
		ResetAt:   next.FirstAttempt.Add(policy.Window),
	}
}

// Result converts a decision into the caller-facing result
func (d Decision) Result() models.RateLimitResult {
	resetAt := d.ResetAt
	return models.RateLimitResult{
		Allowed:           d.Allowed,
		RemainingAttempts: d.Remaining,
		ResetTime:         &resetAt,
		RetryAfter:        d.RetryAfter,
	}
}
