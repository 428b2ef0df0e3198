package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearlink/coordinator/internal/logger"
	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/session"
)

func TestSweeperRunReapsStaleSessions(t *testing.T) {
	e := newEnv(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ss, _, err := e.machine.Press(ctx, e.ident)
	require.NoError(t, err)

	e.clock.Advance(11 * time.Minute)

	sw := session.NewSweeper(e.machine, 10*time.Millisecond, 10*time.Minute,
		logger.Component(logger.New(), "sweeper"))
	go sw.Run(ctx)

	require.Eventually(t, func() bool {
		stored, err := e.store.GetStreamingSession(ctx, ss.SessionID)
		return err == nil && stored != nil && stored.Status == models.StatusFailed
	}, 2*time.Second, 10*time.Millisecond, "sweeper should force-terminate the stale session")

	assert.GreaterOrEqual(t, e.provider.endedCount(ss.SessionID), 1)
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	e := newEnv(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	sw := session.NewSweeper(e.machine, 5*time.Millisecond, time.Minute,
		logger.Component(logger.New(), "sweeper"))

	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
