package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionSweeper drops sessions that have been expired past their retention
type SessionSweeper interface {
	Sweep() int
}

// Pruner drops in-memory limiter entries whose windows have lapsed
type Pruner interface {
	Prune() int
}

// CleanupManager periodically evicts expired sessions and stale soft-gate entries
type CleanupManager struct {
	sessions SessionSweeper
	gate     Pruner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions SessionSweeper,
	gate Pruner,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions: sessions,
		gate:     gate,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce()

	for {
		select {
		case <-ticker.C:
			cm.RunOnce()
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single cleanup pass
func (cm *CleanupManager) RunOnce() {
	swept := cm.sessions.Sweep()
	pruned := cm.gate.Prune()

	if swept > 0 || pruned > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int("sessions_swept", swept),
			slog.Int("gate_entries_pruned", pruned),
		)
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
