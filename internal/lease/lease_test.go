package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableq/jobqueue/internal/clock"
	"github.com/durableq/jobqueue/internal/job"
	"github.com/durableq/jobqueue/internal/jobqueue/jobqueuetest"
)

func mustCreate(t *testing.T, store *jobqueuetest.Store, queue string, runAt time.Time, priority, maxAttempts int, now time.Time) job.Job {
	t.Helper()
	j := job.New(queue, "noop", nil, runAt, priority, maxAttempts, 60, now)
	created, err := store.Create(context.Background(), j)
	require.NoError(t, err)
	return created
}

func TestClaimNext_NoEligibleJobs(t *testing.T) {
	store := jobqueuetest.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	coord := New(store, clk)

	_, found, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClaimNext_RespectsPriorityOrdering(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	low := mustCreate(t, store, "default", now, 0, 1, now)
	high := mustCreate(t, store, "default", now, 10, 1, now)
	_ = low

	claimed, found, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, high.ID, claimed.ID)
	assert.Equal(t, job.StatusRunning, claimed.Status)
	require.NotNil(t, claimed.LeaseOwner)
	assert.Equal(t, "worker-1", *claimed.LeaseOwner)
}

func TestClaimNext_IgnoresOtherQueues(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "emails", now, 0, 1, now)

	_, found, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClaimNext_Concurrent_ExactlyOneWinner(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 1, now)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, found, err := coord.ClaimNext(context.Background(), "worker", []string{"default"}, 60)
			require.NoError(t, err)
			if found {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestHeartbeat_ExtendsOwnedLease(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 1, now)
	claimed, found, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)
	require.True(t, found)

	clk.Advance(30 * time.Second)
	extended, err := coord.Heartbeat(context.Background(), claimed.ID, "worker-1", 60)
	require.NoError(t, err)
	assert.True(t, extended)

	current, err := store.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.NotNil(t, current.LeaseExpiresAt)
	assert.Equal(t, clk.Now().Add(60*time.Second), *current.LeaseExpiresAt)
}

func TestHeartbeat_RejectsWrongOwner(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 1, now)
	claimed, _, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)

	extended, err := coord.Heartbeat(context.Background(), claimed.ID, "worker-2", 60)
	require.NoError(t, err)
	assert.False(t, extended)
}

func TestComplete_Success(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 1, now)
	claimed, _, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)

	applied, err := coord.Complete(context.Background(), claimed.ID, "worker-1", true, "")
	require.NoError(t, err)
	assert.True(t, applied)

	current, err := store.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSucceeded, current.Status)
}

func TestComplete_FailureRequeuesWithRetriesRemaining(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 5, now)
	claimed, _, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)

	applied, err := coord.Complete(context.Background(), claimed.ID, "worker-1", false, "boom")
	require.NoError(t, err)
	assert.True(t, applied)

	current, err := store.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, current.Status)
	assert.Equal(t, 1, current.Attempts)
	assert.True(t, current.RunAt.After(now))
}

func TestComplete_FailureDeadLettersWhenExhausted(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 1, now)
	claimed, _, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)

	applied, err := coord.Complete(context.Background(), claimed.ID, "worker-1", false, "boom")
	require.NoError(t, err)
	assert.True(t, applied)

	current, err := store.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusDead, current.Status)
	require.NotNil(t, current.LastError)
	assert.Equal(t, "boom", *current.LastError)
}

func TestComplete_RejectsWrongOwner(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 1, now)
	claimed, _, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)

	applied, err := coord.Complete(context.Background(), claimed.ID, "worker-2", true, "")
	require.NoError(t, err)
	assert.False(t, applied)

	current, err := store.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, current.Status)
}

func TestRecoverExpired_RequeuesWithRetriesRemaining(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 5, now)
	claimed, _, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)

	reclaimed, err := coord.RecoverExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	current, err := store.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, current.Status)
	assert.Equal(t, 1, current.Attempts)
	assert.Nil(t, current.LeaseOwner)
}

func TestRecoverExpired_DeadLettersWhenExhausted(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 1, now)
	claimed, _, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)

	reclaimed, err := coord.RecoverExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)

	current, err := store.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusDead, current.Status)
}

func TestRecoverExpired_IgnoresLiveLeases(t *testing.T) {
	store := jobqueuetest.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	coord := New(store, clk)

	mustCreate(t, store, "default", now, 0, 5, now)
	_, _, err := coord.ClaimNext(context.Background(), "worker-1", []string{"default"}, 60)
	require.NoError(t, err)

	reclaimed, err := coord.RecoverExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)
}
