package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")

	// Rate limiting
	ErrInvalidKey    = errors.New("rate limit key must not be empty")
	ErrUnknownAction = errors.New("unknown rate limit action")
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	ErrCorruptRecord = errors.New("rate limit record is corrupt")

	// Document store
	ErrStoreUnavailable = errors.New("document store unavailable")

	// Sessions
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrUnknownSignal   = errors.New("unknown activity signal")
)
