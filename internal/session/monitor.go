// Package session tracks user inactivity for an authenticated session and
// forces logout once the warning grace period runs out.
//
// A monitor moves Active -> Warned -> Expired. Activity only postpones the
// warning while Active; once Warned, only an explicit Renew can keep the
// session alive, and Expired is terminal.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bimmatch/guard/internal/clock"
	"github.com/bimmatch/guard/internal/models"
)

const (
	DefaultInactivityTimeout = 120 * time.Second
	DefaultWarningGrace      = 30 * time.Second

	logoutTimeout = 10 * time.Second
)

// Config controls the monitor's timing and which routes suspend it
type Config struct {
	InactivityTimeout time.Duration
	WarningGrace      time.Duration
	// AuthRoutes are entry points (login, register) where no session is
	// being protected. A path matches itself and anything beneath it.
	AuthRoutes []string
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.WarningGrace <= 0 {
		c.WarningGrace = DefaultWarningGrace
	}
	return c
}

// Notifier receives the user-visible transitions
type Notifier interface {
	Warned(remaining time.Duration)
	Expired(logoutErr error)
}

// LogoutFunc ends the session in the identity provider
type LogoutFunc func(ctx context.Context) error

// Monitor is the inactivity state machine for one session. It is safe for
// concurrent use; timer callbacks and caller methods serialize on mu.
type Monitor struct {
	cfg      Config
	clock    clock.Clock
	notifier Notifier
	logout   LogoutFunc
	logger   *slog.Logger

	mu            sync.Mutex
	state         models.SessionState
	started       bool
	suspended     bool
	stopped       bool
	warnAt        time.Time
	forceLogoutAt time.Time
	warnTimer     clock.Timer
	logoutTimer   clock.Timer
	gen           uint64
	logoutErr     error

	// inert is set whenever Signal has nothing to do, so the hot path of
	// high-frequency input events skips the lock.
	inert atomic.Bool
}

// NewMonitor builds a monitor in the Active state. Nothing is scheduled until Start.
func NewMonitor(cfg Config, clk clock.Clock, notifier Notifier, logout LogoutFunc, logger *slog.Logger) *Monitor {
	m := &Monitor{
		cfg:      cfg.withDefaults(),
		clock:    clk,
		notifier: notifier,
		logout:   logout,
		logger:   logger,
		state:    models.SessionActive,
	}
	m.inert.Store(true)
	return m
}

// Start schedules the first warning. Calling it again has no effect.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.stopped {
		return
	}
	m.started = true
	m.scheduleWarnLocked()
}

// Signal reports user activity. It is ignored unless the monitor is Active,
// running and not suspended.
func (m *Monitor) Signal(signal models.ActivitySignal) error {
	if !signal.Valid() {
		return models.ErrUnknownSignal
	}
	if m.inert.Load() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acceptsActivityLocked() {
		return nil
	}
	m.scheduleWarnLocked()
	return nil
}

// Renew is the explicit "stay signed in" path. It brings a Warned session
// back to Active with a fresh inactivity deadline.
func (m *Monitor) Renew() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.state == models.SessionExpired {
		return models.ErrSessionExpired
	}
	if m.suspended || !m.started {
		return nil
	}

	m.state = models.SessionActive
	m.scheduleWarnLocked()
	return nil
}

// EnterRoute tells the monitor where the user navigated. Auth entry routes
// suspend an Active monitor with its warning cancelled; any other route
// resumes it. A Warned monitor ignores navigation: its logout deadline
// only yields to Renew or Stop.
func (m *Monitor) EnterRoute(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.state != models.SessionActive {
		return
	}

	if m.isAuthRoute(path) {
		if m.suspended {
			return
		}
		m.suspended = true
		m.cancelTimersLocked()
		m.warnAt = time.Time{}
		m.forceLogoutAt = time.Time{}
		m.inert.Store(true)
		return
	}

	if m.suspended {
		m.suspended = false
		m.started = true
		m.scheduleWarnLocked()
	}
}

// Stop cancels every scheduled transition. The monitor cannot be reused.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	m.cancelTimersLocked()
	m.inert.Store(true)
}

// Snapshot returns the monitor's state and pending deadlines
func (m *Monitor) Snapshot() models.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := models.SessionSnapshot{
		State:     m.state,
		Suspended: m.suspended,
	}
	if !m.warnAt.IsZero() {
		warnAt := m.warnAt
		snap.WarnAt = &warnAt
	}
	if !m.forceLogoutAt.IsZero() {
		forceLogoutAt := m.forceLogoutAt
		snap.ForceLogoutAt = &forceLogoutAt
	}
	if m.logoutErr != nil {
		snap.LogoutError = m.logoutErr.Error()
	}
	return snap
}

// State returns the current state
func (m *Monitor) State() models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) acceptsActivityLocked() bool {
	return m.started && !m.stopped && !m.suspended && m.state == models.SessionActive
}

// scheduleWarnLocked replaces any pending timer with a fresh warning deadline
func (m *Monitor) scheduleWarnLocked() {
	m.cancelTimersLocked()

	gen := m.gen
	m.warnAt = m.clock.Now().Add(m.cfg.InactivityTimeout)
	m.forceLogoutAt = time.Time{}
	m.warnTimer = m.clock.AfterFunc(m.cfg.InactivityTimeout, func() { m.onWarn(gen) })
	m.inert.Store(false)
}

// cancelTimersLocked stops both timers and invalidates callbacks already in flight
func (m *Monitor) cancelTimersLocked() {
	m.gen++
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.logoutTimer != nil {
		m.logoutTimer.Stop()
		m.logoutTimer = nil
	}
}

func (m *Monitor) onWarn(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.acceptsActivityLocked() {
		m.mu.Unlock()
		return
	}

	m.state = models.SessionWarned
	m.inert.Store(true)
	m.warnTimer = nil
	m.warnAt = time.Time{}
	m.forceLogoutAt = m.clock.Now().Add(m.cfg.WarningGrace)
	m.logoutTimer = m.clock.AfterFunc(m.cfg.WarningGrace, func() { m.onExpire(gen) })
	grace := m.cfg.WarningGrace
	m.mu.Unlock()

	m.logger.Info("session inactivity warning", slog.Duration("grace", grace))
	if m.notifier != nil {
		m.notifier.Warned(grace)
	}
}

// onExpire commits Expired before calling logout, so a failing or slow logout
// can never leave the session alive.
func (m *Monitor) onExpire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.stopped || m.state != models.SessionWarned {
		m.mu.Unlock()
		return
	}

	m.state = models.SessionExpired
	m.logoutTimer = nil
	m.inert.Store(true)
	m.mu.Unlock()

	var err error
	if m.logout != nil {
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		err = m.logout(ctx)
		cancel()
	}
	if err != nil {
		m.logger.Error("forced logout failed", slog.Any("error", err))
		m.mu.Lock()
		m.logoutErr = err
		m.mu.Unlock()
	} else {
		m.logger.Info("session expired after inactivity")
	}

	if m.notifier != nil {
		m.notifier.Expired(err)
	}
}

func (m *Monitor) isAuthRoute(path string) bool {
	for _, route := range m.cfg.AuthRoutes {
		route = strings.TrimRight(route, "/")
		if route == "" {
			continue
		}
		if path == route || strings.HasPrefix(path, route+"/") {
			return true
		}
	}
	return false
}
