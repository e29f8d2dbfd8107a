package jobadmin

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableq/jobqueue/internal/clock"
	"github.com/durableq/jobqueue/internal/job"
	"github.com/durableq/jobqueue/internal/jobqueue/jobqueuetest"
)

func TestCreate_DefaultsAndImmediateQueue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(jobqueuetest.New(), clock.NewFake(now))

	created, err := svc.Create(context.Background(), CreateParams{
		Queue:   "default",
		Handler: "noop",
		Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	assert.Equal(t, job.StatusQueued, created.Status)
	assert.Equal(t, 1, created.MaxAttempts)
	assert.Equal(t, 60, created.TimeoutSecs)
	assert.Equal(t, now, created.RunAt)
}

func TestCreate_FutureRunAtIsScheduled(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(jobqueuetest.New(), clock.NewFake(now))

	created, err := svc.Create(context.Background(), CreateParams{
		Queue:   "default",
		Handler: "noop",
		RunAt:   now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, created.Status)
}

func TestGet_NotFound(t *testing.T) {
	svc := New(jobqueuetest.New(), clock.Real{})
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestCancel_RejectsTerminalJob(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := jobqueuetest.New()
	svc := New(store, clock.NewFake(now))

	created, err := svc.Create(context.Background(), CreateParams{Queue: "default", Handler: "noop"})
	require.NoError(t, err)
	require.NoError(t, store.SetSucceeded(context.Background(), created.ID))

	err = svc.Cancel(context.Background(), created.ID)
	assert.ErrorIs(t, err, job.ErrNotCancellable)
}

func TestCancel_MovesNonTerminalJobToCancelled(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(jobqueuetest.New(), clock.NewFake(now))

	created, err := svc.Create(context.Background(), CreateParams{Queue: "default", Handler: "noop"})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), created.ID))

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, got.Status)
}

func TestRetry_RejectsNonFailedNonDeadJob(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(jobqueuetest.New(), clock.NewFake(now))

	created, err := svc.Create(context.Background(), CreateParams{Queue: "default", Handler: "noop"})
	require.NoError(t, err)

	err = svc.Retry(context.Background(), created.ID)
	assert.ErrorIs(t, err, job.ErrNotRetriable)
}

func TestRetry_RequeuesFailedJob(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := jobqueuetest.New()
	svc := New(store, clock.NewFake(now))

	created, err := svc.Create(context.Background(), CreateParams{Queue: "default", Handler: "noop"})
	require.NoError(t, err)
	require.NoError(t, store.SetFailed(context.Background(), created.ID, "boom"))

	require.NoError(t, svc.Retry(context.Background(), created.ID))

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Nil(t, got.LastError)
}

func TestUpdate_PatchesOnlyGivenFields(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(jobqueuetest.New(), clock.NewFake(now))

	created, err := svc.Create(context.Background(), CreateParams{Queue: "default", Handler: "noop", Priority: 0})
	require.NoError(t, err)

	newPriority := 5
	updated, err := svc.Update(context.Background(), created.ID, job.Fields{Priority: &newPriority})
	require.NoError(t, err)

	assert.Equal(t, 5, updated.Priority)
	assert.Equal(t, created.TimeoutSecs, updated.TimeoutSecs)
}

func TestDelete(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(jobqueuetest.New(), clock.NewFake(now))

	created, err := svc.Create(context.Background(), CreateParams{Queue: "default", Handler: "noop"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	_, err = svc.Get(context.Background(), created.ID)
	assert.True(t, IsNotFound(err))
}

func TestList_FiltersByQueue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(jobqueuetest.New(), clock.NewFake(now))

	_, err := svc.Create(context.Background(), CreateParams{Queue: "default", Handler: "noop"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateParams{Queue: "emails", Handler: "noop"})
	require.NoError(t, err)

	queue := "emails"
	result, err := svc.List(context.Background(), job.ListFilter{Queue: &queue}, 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "emails", result.Jobs[0].Queue)
	assert.Equal(t, 1, result.Total)
}
