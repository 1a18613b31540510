package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFromDocument_NumericVariants(t *testing.T) {
	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		attempts any
	}{
		{"int", 3},
		{"int64", int64(3)},
		{"float64", float64(3)},
		{"json.Number", json.Number("3")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{
				"attempts":      tt.attempts,
				"first_attempt": first.Format(time.RFC3339Nano),
				"last_attempt":  first,
			}

			record, err := RecordFromDocument(doc)
			require.NoError(t, err)
			assert.Equal(t, 3, record.Attempts)
			assert.True(t, first.Equal(record.FirstAttempt))
			assert.True(t, first.Equal(record.LastAttempt))
			assert.Nil(t, record.BlockedUntil)
		})
	}
}

func TestRecordFromDocument_RoundTrip(t *testing.T) {
	first := time.Date(2026, 3, 2, 9, 0, 0, 123, time.UTC)
	blocked := first.Add(time.Hour)
	record := RateLimitRecord{Attempts: 4, FirstAttempt: first, LastAttempt: first, BlockedUntil: &blocked}

	got, err := RecordFromDocument(record.ToDocument())
	require.NoError(t, err)
	require.NotNil(t, got.BlockedUntil)
	assert.True(t, blocked.Equal(*got.BlockedUntil))
	assert.True(t, first.Equal(got.FirstAttempt))
}

func TestRecordFromDocument_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"missing attempts", Document{"first_attempt": "2026-03-02T09:00:00Z", "last_attempt": "2026-03-02T09:00:00Z"}},
		{"string attempts", Document{"attempts": "three", "first_attempt": "2026-03-02T09:00:00Z", "last_attempt": "2026-03-02T09:00:00Z"}},
		{"bad timestamp", Document{"attempts": 1, "first_attempt": "yesterday", "last_attempt": "2026-03-02T09:00:00Z"}},
		{"bad block", Document{"attempts": 1, "first_attempt": "2026-03-02T09:00:00Z", "last_attempt": "2026-03-02T09:00:00Z", "blocked_until": 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecordFromDocument(tt.doc)
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestRateLimitResult_RetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, RateLimitResult{}.RetryAfterSeconds())
	assert.Equal(t, 1, RateLimitResult{RetryAfter: 10 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 900, RateLimitResult{RetryAfter: 15 * time.Minute}.RetryAfterSeconds())
}
