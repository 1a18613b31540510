package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType string
	Subject   string
	IPAddress string
	Allowed   bool
	Reason    string
	Metadata  map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log writes an audit record. Denied events are logged at warn level.
func (al *AuditLogger) Log(auditType string, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("allowed", event.Allowed),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Subject != "" {
		attrs = append(attrs, slog.String("subject", event.Subject))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Allowed {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogRateLimitDenied records a key being turned away by the limiter
func (al *AuditLogger) LogRateLimitDenied(key, action string, retryAfter time.Duration) {
	al.Log("rate_limit", AuditEvent{
		EventType: "rate_limit_denied",
		Subject:   SanitizedKey(key),
		Allowed:   false,
		Reason:    "attempts exceeded",
		Metadata: map[string]string{
			"action":      action,
			"retry_after": retryAfter.String(),
		},
	})
}

// LogRateLimitReset records an administrative reset of a key
func (al *AuditLogger) LogRateLimitReset(key, ipAddress string) {
	al.Log("rate_limit", AuditEvent{
		EventType: "rate_limit_reset",
		Subject:   SanitizedKey(key),
		IPAddress: ipAddress,
		Allowed:   true,
	})
}

// LogSessionEvent records session lifecycle transitions such as forced logout
func (al *AuditLogger) LogSessionEvent(eventType, sessionID string, allowed bool, metadata map[string]string) {
	al.Log("session", AuditEvent{
		EventType: eventType,
		Subject:   sessionID,
		Allowed:   allowed,
		Metadata:  metadata,
	})
}
