package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableq/jobqueue/internal/clock"
	"github.com/durableq/jobqueue/internal/job"
	"github.com/durableq/jobqueue/internal/jobqueue/jobqueuetest"
	"github.com/durableq/jobqueue/internal/lease"
)

func TestSweep_ReclaimsExpiredLeases(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := lease.New(store, clk)

	created, err := store.Create(context.Background(), job.New("default", "noop", nil, now, 0, 5, 60, now))
	require.NoError(t, err)
	require.NoError(t, store.SetRunning(context.Background(), created.ID, "worker-1", now.Add(-time.Minute), now.Add(-2*time.Minute)))

	s := New(coord, time.Second)
	s.sweep(context.Background())

	got, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, got.Status)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := jobqueuetest.New()
	coord := lease.New(store, clock.NewFake(time.Now()))
	s := New(coord, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Scheduler.Run did not stop after context cancellation")
	}
}
