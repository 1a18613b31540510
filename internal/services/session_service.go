package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bimmatch/guard/internal/clock"
	"github.com/bimmatch/guard/internal/models"
	"github.com/bimmatch/guard/internal/session"
	"github.com/bimmatch/guard/pkg/logger"
)

const sessionKeyPrefix = "session:"

// SessionService owns one inactivity monitor per live session
type SessionService struct {
	store     DocumentStore
	clock     clock.Clock
	cfg       session.Config
	retention time.Duration
	logger    *slog.Logger
	audit     *logger.AuditLogger

	mu       sync.RWMutex
	sessions map[string]*trackedSession
}

// trackedSession pairs a monitor with the last notice it produced
type trackedSession struct {
	id      string
	service *SessionService
	monitor *session.Monitor

	mu        sync.Mutex
	notice    *models.SessionNotice
	expiredAt time.Time
}

// NewSessionService creates a new SessionService. Expired sessions stay
// readable for retention so the UI can show the logged-out notice.
func NewSessionService(store DocumentStore, clk clock.Clock, cfg session.Config, retention time.Duration, logger *slog.Logger, audit *logger.AuditLogger) *SessionService {
	return &SessionService{
		store:     store,
		clock:     clk,
		cfg:       cfg,
		retention: retention,
		logger:    logger,
		audit:     audit,
		sessions:  make(map[string]*trackedSession),
	}
}

// Start registers a new session and begins watching it for inactivity
func (s *SessionService) Start(ctx context.Context) (models.SessionSnapshot, error) {
	id := uuid.NewString()
	now := s.clock.Now()

	doc := models.Document{
		"id":         id,
		"created_at": now.UTC().Format(time.RFC3339Nano),
	}
	if err := s.store.Put(ctx, sessionKeyPrefix+id, doc); err != nil {
		s.logger.Error("failed to persist session", slog.String("session_id", id), slog.Any("error", err))
		return models.SessionSnapshot{}, fmt.Errorf("start session: %w", err)
	}

	ts := &trackedSession{id: id, service: s}
	ts.monitor = session.NewMonitor(s.cfg, s.clock, ts, s.forcedLogout(id), s.logger.With(slog.String("session_id", id)))

	s.mu.Lock()
	s.sessions[id] = ts
	s.mu.Unlock()

	ts.monitor.Start()
	s.logger.Info("session started", slog.String("session_id", id))

	return ts.snapshot(), nil
}

// Signal forwards a user activity event to the session's monitor
func (s *SessionService) Signal(id string, signal models.ActivitySignal) (models.SessionSnapshot, error) {
	ts, err := s.lookup(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	if err := ts.monitor.Signal(signal); err != nil {
		return models.SessionSnapshot{}, err
	}
	return ts.snapshot(), nil
}

// Renew keeps a warned session alive. Expired sessions cannot be renewed.
func (s *SessionService) Renew(id string) (models.SessionSnapshot, error) {
	ts, err := s.lookup(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	if err := ts.monitor.Renew(); err != nil {
		return models.SessionSnapshot{}, err
	}

	ts.mu.Lock()
	ts.notice = nil
	ts.mu.Unlock()

	return ts.snapshot(), nil
}

// EnterRoute reports navigation so auth entry routes can suspend the monitor
func (s *SessionService) EnterRoute(id, path string) (models.SessionSnapshot, error) {
	ts, err := s.lookup(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	ts.monitor.EnterRoute(path)
	return ts.snapshot(), nil
}

// Snapshot returns the session's current state
func (s *SessionService) Snapshot(id string) (models.SessionSnapshot, error) {
	ts, err := s.lookup(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return ts.snapshot(), nil
}

// Logout is an explicit sign-out: timers are cancelled, the session record
// is deleted and the monitor is discarded.
func (s *SessionService) Logout(ctx context.Context, id string) error {
	s.mu.Lock()
	ts, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return models.ErrSessionNotFound
	}
	ts.monitor.Stop()

	if err := s.store.Delete(ctx, sessionKeyPrefix+id); err != nil {
		s.logger.Error("failed to delete session record", slog.String("session_id", id), slog.Any("error", err))
		return fmt.Errorf("logout: %w", err)
	}

	s.logger.Info("session logged out", slog.String("session_id", id))
	return nil
}

// Sweep drops sessions that have been expired for longer than the retention
// period and returns how many were removed
func (s *SessionService) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ts := range s.sessions {
		ts.mu.Lock()
		expiredAt := ts.expiredAt
		ts.mu.Unlock()

		if !expiredAt.IsZero() && !now.Before(expiredAt.Add(s.retention)) {
			ts.monitor.Stop()
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StopAll cancels every monitor, used on shutdown
func (s *SessionService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ts := range s.sessions {
		ts.monitor.Stop()
		delete(s.sessions, id)
	}
}

// Count returns the number of tracked sessions
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionService) lookup(id string) (*trackedSession, error) {
	s.mu.RLock()
	ts, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return ts, nil
}

// forcedLogout invalidates the session record when the grace period runs out
func (s *SessionService) forcedLogout(id string) session.LogoutFunc {
	return func(ctx context.Context) error {
		if err := s.store.Delete(ctx, sessionKeyPrefix+id); err != nil {
			return fmt.Errorf("invalidate session %s: %w", id, err)
		}
		return nil
	}
}

func (ts *trackedSession) Warned(remaining time.Duration) {
	ts.mu.Lock()
	ts.notice = &models.SessionNotice{
		Kind:             models.NoticeWarning,
		Message:          "You will be signed out soon because of inactivity.",
		RemainingSeconds: int(remaining.Seconds()),
		IssuedAt:         ts.service.clock.Now(),
	}
	ts.mu.Unlock()
}

func (ts *trackedSession) Expired(logoutErr error) {
	now := ts.service.clock.Now()

	ts.mu.Lock()
	ts.expiredAt = now
	ts.notice = &models.SessionNotice{
		Kind:     models.NoticeExpired,
		Message:  "You were signed out because of inactivity.",
		IssuedAt: now,
	}
	ts.mu.Unlock()

	if ts.service.audit != nil {
		metadata := map[string]string{}
		if logoutErr != nil {
			metadata["logout_error"] = logoutErr.Error()
		}
		ts.service.audit.LogSessionEvent("session_forced_logout", ts.id, logoutErr == nil, metadata)
	}
}

func (ts *trackedSession) snapshot() models.SessionSnapshot {
	snap := ts.monitor.Snapshot()
	snap.ID = ts.id

	ts.mu.Lock()
	// a warning only applies while the monitor is still warned
	if ts.notice != nil && (ts.notice.Kind != models.NoticeWarning || snap.State == models.SessionWarned) {
		notice := *ts.notice
		if notice.Kind == models.NoticeWarning && snap.ForceLogoutAt != nil {
			remaining := snap.ForceLogoutAt.Sub(ts.service.clock.Now())
			notice.RemainingSeconds = int((remaining + time.Second - 1) / time.Second)
		}
		snap.Notice = &notice
	}
	ts.mu.Unlock()

	return snap
}
