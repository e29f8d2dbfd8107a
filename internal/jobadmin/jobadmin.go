// Package jobadmin implements the business rules behind the Admin API's
// create/get/list/update/delete/cancel/retry operations. The HTTP/CORS/auth
// transport that would expose these is out of scope; this is the service a
// future transport would call, grounded on original_source's
// app/services/job.py.
package jobadmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/durableq/jobqueue/internal/clock"
	"github.com/durableq/jobqueue/internal/job"
	"github.com/durableq/jobqueue/internal/jobqueue"
)

// Service implements the job admin operations directly on top of a
// JobStore.
type Service struct {
	store jobqueue.JobStore
	clock clock.Clock
}

// New builds a Service over store, using clk as the "now" source.
func New(store jobqueue.JobStore, clk clock.Clock) *Service {
	return &Service{store: store, clock: clk}
}

// CreateParams are the fields a caller supplies to enqueue a job. RunAt
// defaults to now (immediately queued) when zero.
type CreateParams struct {
	Queue       string
	Handler     string
	Payload     json.RawMessage
	RunAt       time.Time
	Priority    int
	MaxAttempts int
	TimeoutSecs int
}

// Create persists a new job, queued or scheduled depending on RunAt.
func (s *Service) Create(ctx context.Context, params CreateParams) (job.Job, error) {
	now := s.clock.Now()
	runAt := params.RunAt
	if runAt.IsZero() {
		runAt = now
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	timeoutSecs := params.TimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = 60
	}

	j := job.New(params.Queue, params.Handler, params.Payload, runAt, params.Priority, maxAttempts, timeoutSecs, now)
	created, err := s.store.Create(ctx, j)
	if err != nil {
		return job.Job{}, fmt.Errorf("create job: %w", err)
	}
	return created, nil
}

// Get fetches a job by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (job.Job, error) {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return job.Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// List returns jobs matching filter, paginated by offset/limit, plus the
// total matching count.
func (s *Service) List(ctx context.Context, filter job.ListFilter, offset, limit int) (jobqueue.ListResult, error) {
	result, err := s.store.List(ctx, filter, offset, limit)
	if err != nil {
		return jobqueue.ListResult{}, fmt.Errorf("list jobs: %w", err)
	}
	return result, nil
}

// Update patches the mutable subset of fields (priority, run_at,
// max_attempts, timeout_secs).
func (s *Service) Update(ctx context.Context, id uuid.UUID, fields job.Fields) (job.Job, error) {
	updated, err := s.store.UpdateFields(ctx, id, fields)
	if err != nil {
		return job.Job{}, fmt.Errorf("update job: %w", err)
	}
	return updated, nil
}

// Delete removes a job outright.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// Cancel moves a non-terminal job straight to cancelled. Rejects jobs
// already in a terminal state with ErrNotCancellable. Calling Cancel on an
// already-cancelled job is a no-op that returns ErrNotCancellable, matching
// spec.md §8's round-trip property.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if j.Status.Terminal() {
		return job.ErrNotCancellable
	}
	if err := s.store.SetCancelled(ctx, id); err != nil {
		return fmt.Errorf("set cancelled: %w", err)
	}
	return nil
}

// Retry re-enters a failed or dead job into queued, resetting attempts to
// zero, clearing last_error and the lease, and setting run_at to now.
// Rejects jobs in any other status with ErrNotRetriable.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) error {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if j.Status != job.StatusFailed && j.Status != job.StatusDead {
		return job.ErrNotRetriable
	}
	if err := s.store.SetRetried(ctx, id, s.clock.Now()); err != nil {
		return fmt.Errorf("set retried: %w", err)
	}
	return nil
}

// IsNotFound reports whether err wraps job.ErrNotFound, the sentinel a
// transport layer maps to 404.
func IsNotFound(err error) bool {
	return errors.Is(err, job.ErrNotFound)
}
