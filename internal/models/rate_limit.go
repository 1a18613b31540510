package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Action identifies the category of a throttled operation
type Action string

const (
	ActionLogin         Action = "login"
	ActionRegister      Action = "register"
	ActionPasswordReset Action = "password_reset"
	ActionGenericAPI    Action = "generic_api"
	ActionFileUpload    Action = "file_upload"
)

// Actions lists every known action category
func Actions() []Action {
	return []Action{ActionLogin, ActionRegister, ActionPasswordReset, ActionGenericAPI, ActionFileUpload}
}

// RateLimitPolicy bounds how many attempts fit in a window and how long a key stays blocked
type RateLimitPolicy struct {
	MaxAttempts   int           `json:"max_attempts" validate:"min=1"`
	Window        time.Duration `json:"window" validate:"gt=0"`
	BlockDuration time.Duration `json:"block_duration" validate:"gte=0"`
}

// RateLimitRecord is the persisted per-key state shared by every caller of that key.
// Writes are last-writer-wins; no field is updated atomically.
type RateLimitRecord struct {
	Attempts     int
	FirstAttempt time.Time
	LastAttempt  time.Time
	BlockedUntil *time.Time
}

// RateLimitResult is what callers see for a check or info probe
type RateLimitResult struct {
	Allowed           bool          `json:"allowed"`
	RemainingAttempts int           `json:"remaining_attempts"`
	ResetTime         *time.Time    `json:"reset_time,omitempty"`
	RetryAfter        time.Duration `json:"-"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for Retry-After headers and countdowns
func (r RateLimitResult) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// Document is an opaque field bag stored under a single key
type Document map[string]any

const (
	fieldAttempts     = "attempts"
	fieldFirstAttempt = "first_attempt"
	fieldLastAttempt  = "last_attempt"
	fieldBlockedUntil = "blocked_until"
)

// ToDocument encodes the record with RFC 3339 timestamps
func (r RateLimitRecord) ToDocument() Document {
	doc := Document{
		fieldAttempts:     r.Attempts,
		fieldFirstAttempt: r.FirstAttempt.UTC().Format(time.RFC3339Nano),
		fieldLastAttempt:  r.LastAttempt.UTC().Format(time.RFC3339Nano),
	}
	if r.BlockedUntil != nil {
		doc[fieldBlockedUntil] = r.BlockedUntil.UTC().Format(time.RFC3339Nano)
	}
	return doc
}

// RecordFromDocument decodes a record written by ToDocument. Numbers may arrive
// as any of the types produced by the JSON decoders of the different stores.
func RecordFromDocument(doc Document) (*RateLimitRecord, error) {
	attempts, err := intField(doc, fieldAttempts)
	if err != nil {
		return nil, err
	}
	first, err := timeField(doc, fieldFirstAttempt)
	if err != nil {
		return nil, err
	}
	last, err := timeField(doc, fieldLastAttempt)
	if err != nil {
		return nil, err
	}

	record := &RateLimitRecord{
		Attempts:     attempts,
		FirstAttempt: first,
		LastAttempt:  last,
	}

	if _, ok := doc[fieldBlockedUntil]; ok && doc[fieldBlockedUntil] != nil {
		blockedUntil, err := timeField(doc, fieldBlockedUntil)
		if err != nil {
			return nil, err
		}
		record.BlockedUntil = &blockedUntil
	}

	return record, nil
}

func intField(doc Document, name string) (int, error) {
	switch v := doc[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, name, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrCorruptRecord, name, v)
	}
}

func timeField(doc Document, name string) (time.Time, error) {
	switch v := doc[name].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, name, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s has type %T", ErrCorruptRecord, name, v)
	}
}
