package background

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls  atomic.Int32
	result int
}

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return c.result
}

func (c *countingSweeper) Prune() int {
	c.calls.Add(1)
	return c.result
}

func newTestManager(sessions, gate *countingSweeper, interval time.Duration) *CleanupManager {
	return NewCleanupManager(sessions, gate, slog.New(slog.NewTextHandler(io.Discard, nil)), interval)
}

func TestRunOnce_CallsBoth(t *testing.T) {
	sessions := &countingSweeper{result: 2}
	gate := &countingSweeper{}

	newTestManager(sessions, gate, time.Hour).RunOnce()

	assert.Equal(t, int32(1), sessions.calls.Load())
	assert.Equal(t, int32(1), gate.calls.Load())
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	sessions := &countingSweeper{}
	gate := &countingSweeper{}
	cm := newTestManager(sessions, gate, time.Hour)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return sessions.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}

func TestStart_TicksUntilContextCancelled(t *testing.T) {
	sessions := &countingSweeper{}
	gate := &countingSweeper{}
	cm := newTestManager(sessions, gate, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return gate.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager ignored cancellation")
	}
}
