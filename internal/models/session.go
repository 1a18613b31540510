package models

import "time"

// SessionState is the inactivity state of an authenticated session
type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionWarned  SessionState = "warned"
	SessionExpired SessionState = "expired"
)

// ActivitySignal is a user input event forwarded by the UI
type ActivitySignal string

const (
	SignalPointerDown ActivitySignal = "pointer_down"
	SignalPointerMove ActivitySignal = "pointer_move"
	SignalKeyDown     ActivitySignal = "key_down"
	SignalScroll      ActivitySignal = "scroll"
	SignalTouchStart  ActivitySignal = "touch_start"
	SignalClick       ActivitySignal = "click"
)

var activitySignals = map[ActivitySignal]struct{}{
	SignalPointerDown: {},
	SignalPointerMove: {},
	SignalKeyDown:     {},
	SignalScroll:      {},
	SignalTouchStart:  {},
	SignalClick:       {},
}

// Valid reports whether s is one of the signals that reset the idle clock
func (s ActivitySignal) Valid() bool {
	_, ok := activitySignals[s]
	return ok
}

// NoticeKind distinguishes the countdown warning from the logged-out notice
type NoticeKind string

const (
	NoticeWarning NoticeKind = "warning"
	NoticeExpired NoticeKind = "expired"
)

// SessionNotice is the user-visible message produced by a state transition
type SessionNotice struct {
	Kind             NoticeKind `json:"kind"`
	Message          string     `json:"message"`
	RemainingSeconds int        `json:"remaining_seconds,omitempty"`
	IssuedAt         time.Time  `json:"issued_at"`
}

// SessionSnapshot is a point-in-time view of a monitored session
type SessionSnapshot struct {
	ID            string         `json:"id"`
	State         SessionState   `json:"state"`
	Suspended     bool           `json:"suspended"`
	WarnAt        *time.Time     `json:"warn_at,omitempty"`
	ForceLogoutAt *time.Time     `json:"force_logout_at,omitempty"`
	Notice        *SessionNotice `json:"notice,omitempty"`
	LogoutError   string         `json:"logout_error,omitempty"`
}
