// Package jobqueue declares the storage-agnostic JobStore interface that
// LeaseCoordinator and jobadmin consume. It is owned by the consumer side
// of the boundary, not by the postgres package that implements it.
package jobqueue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/durableq/jobqueue/internal/job"
)

// ListResult is the page of jobs and total matching count returned by List.
type ListResult struct {
	Jobs  []job.Job
	Total int
}

// JobStore is the transactional persistence boundary over job rows. All
// methods that mutate state must be atomic with respect to concurrent
// callers; FindNextRunnable additionally must use row-level locking that
// skips rows already locked by another transaction.
type JobStore interface {
	Get(ctx context.Context, id uuid.UUID) (job.Job, error)
	Create(ctx context.Context, j job.Job) (job.Job, error)
	List(ctx context.Context, filter job.ListFilter, offset, limit int) (ListResult, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields job.Fields) (job.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// FindNextRunnable locks and returns the single highest-priority
	// claimable job across the given queues, or ErrNotFound if none is
	// eligible. Must run inside a transaction the caller controls; the
	// lock is released at commit/rollback.
	FindNextRunnable(ctx context.Context, queues []string, now time.Time) (job.Job, error)

	// FindExpiredLeases returns every running job whose lease has
	// expired as of now.
	FindExpiredLeases(ctx context.Context, now time.Time) ([]job.Job, error)

	SetRunning(ctx context.Context, id uuid.UUID, owner string, expiresAt, heartbeatAt time.Time) error
	SetHeartbeat(ctx context.Context, id uuid.UUID, expiresAt, heartbeatAt time.Time) error
	SetSucceeded(ctx context.Context, id uuid.UUID) error
	SetFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	SetDead(ctx context.Context, id uuid.UUID, errMsg string) error
	SetQueuedForRetry(ctx context.Context, id uuid.UUID, runAt time.Time) error
	IncrementAttempts(ctx context.Context, id uuid.UUID) error

	// SetCancelled transitions any non-terminal job straight to
	// cancelled, clearing the lease fields per invariant (2).
	SetCancelled(ctx context.Context, id uuid.UUID) error

	// SetRetried re-enters a failed|dead job into queued, resetting
	// attempts to zero and clearing last_error and the lease.
	SetRetried(ctx context.Context, id uuid.UUID, runAt time.Time) error

	// WithTx runs fn against a JobStore bound to a single transaction,
	// committing on success and rolling back if fn returns an error or
	// panics. LeaseCoordinator uses this to bound ClaimNext/Complete to
	// one transactional envelope.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx JobStore) error) error
}
