// Package lease implements LeaseCoordinator, composing policy and
// jobqueue.JobStore into the four core operations a worker calls: claim,
// heartbeat, complete, and the recovery sweep.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/durableq/jobqueue/internal/clock"
	"github.com/durableq/jobqueue/internal/job"
	"github.com/durableq/jobqueue/internal/jobqueue"
	"github.com/durableq/jobqueue/internal/policy"
)

// Coordinator owns the transactional envelope for ClaimNext, Heartbeat,
// Complete, and RecoverExpired.
type Coordinator struct {
	store jobqueue.JobStore
	clock clock.Clock
}

// New builds a Coordinator over store, using clk as the "now" source.
func New(store jobqueue.JobStore, clk clock.Clock) *Coordinator {
	return &Coordinator{store: store, clock: clk}
}

// ClaimNext finds the highest-priority eligible job across queues and
// transitions it to running with a fresh lease, all within one transaction.
// Returns (job.Job{}, false, nil) when nothing is eligible.
func (c *Coordinator) ClaimNext(ctx context.Context, workerID string, queues []string, leaseSeconds int) (job.Job, bool, error) {
	var claimed job.Job
	var found bool

	err := c.store.WithTx(ctx, func(ctx context.Context, tx jobqueue.JobStore) error {
		now := c.clock.Now()
		next, err := tx.FindNextRunnable(ctx, queues, now)
		if err != nil {
			if errors.Is(err, job.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("find next runnable job: %w", err)
		}

		expiresAt := policy.ComputeLeaseExpiry(now, leaseSeconds)
		if err := tx.SetRunning(ctx, next.ID, workerID, expiresAt, now); err != nil {
			return fmt.Errorf("set job running: %w", err)
		}

		next.Status = job.StatusRunning
		next.LeaseOwner = &workerID
		next.LeaseExpiresAt = &expiresAt
		next.HeartbeatAt = &now
		claimed = next
		found = true
		return nil
	})
	if err != nil {
		return job.Job{}, false, err
	}
	return claimed, found, nil
}

// Heartbeat extends the lease of a job workerID still owns. Returns false
// when the caller no longer owns the lease — the caller must stop work.
func (c *Coordinator) Heartbeat(ctx context.Context, jobID uuid.UUID, workerID string, leaseSeconds int) (bool, error) {
	var extended bool

	err := c.store.WithTx(ctx, func(ctx context.Context, tx jobqueue.JobStore) error {
		j, err := tx.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, job.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("get job: %w", err)
		}
		if !policy.OwnsLease(&j, workerID) {
			return nil
		}

		now := c.clock.Now()
		expiresAt := policy.ComputeLeaseExpiry(now, leaseSeconds)
		if err := tx.SetHeartbeat(ctx, jobID, expiresAt, now); err != nil {
			return fmt.Errorf("set heartbeat: %w", err)
		}
		extended = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return extended, nil
}

// Complete applies the outcome of an execution workerID ran. Returns false
// when workerID no longer owns the lease; the result is discarded and the
// caller must not treat this as an error.
func (c *Coordinator) Complete(ctx context.Context, jobID uuid.UUID, workerID string, success bool, errMsg string) (bool, error) {
	var applied bool

	err := c.store.WithTx(ctx, func(ctx context.Context, tx jobqueue.JobStore) error {
		j, err := tx.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, job.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("get job: %w", err)
		}
		if !policy.OwnsLease(&j, workerID) {
			return nil
		}

		switch policy.DecideCompletion(&j, success) {
		case policy.CompletionSucceeded:
			if err := tx.SetSucceeded(ctx, jobID); err != nil {
				return fmt.Errorf("set succeeded: %w", err)
			}
		case policy.CompletionDead:
			if err := tx.IncrementAttempts(ctx, jobID); err != nil {
				return fmt.Errorf("increment attempts: %w", err)
			}
			msg := errMsg
			if msg == "" {
				msg = "Max attempts exceeded"
			}
			if err := tx.SetDead(ctx, jobID, msg); err != nil {
				return fmt.Errorf("set dead: %w", err)
			}
		case policy.CompletionRetry:
			if err := tx.IncrementAttempts(ctx, jobID); err != nil {
				return fmt.Errorf("increment attempts: %w", err)
			}
			now := c.clock.Now()
			nextRunAt := policy.ComputeNextRunAt(now, j.Attempts+1)
			msg := errMsg
			if msg == "" {
				msg = "Unknown error"
			}
			if err := tx.SetFailed(ctx, jobID, msg); err != nil {
				return fmt.Errorf("set failed: %w", err)
			}
			if err := tx.SetQueuedForRetry(ctx, jobID, nextRunAt); err != nil {
				return fmt.Errorf("set queued for retry: %w", err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// RecoverExpired reclaims every running job whose lease has expired,
// treating the missing completion as a failed attempt. Each row transitions
// in its own transaction so one bad row cannot block the sweep. Returns the
// number of rows reclaimed into queued (dead transitions are not counted).
func (c *Coordinator) RecoverExpired(ctx context.Context) (int, error) {
	now := c.clock.Now()

	var expired []job.Job
	err := c.store.WithTx(ctx, func(ctx context.Context, tx jobqueue.JobStore) error {
		rows, err := tx.FindExpiredLeases(ctx, now)
		if err != nil {
			return fmt.Errorf("find expired leases: %w", err)
		}
		expired = rows
		return nil
	})
	if err != nil {
		return 0, err
	}

	var reclaimed int
	for _, j := range expired {
		jobID := j.ID
		err := c.store.WithTx(ctx, func(ctx context.Context, tx jobqueue.JobStore) error {
			current, err := tx.Get(ctx, jobID)
			if err != nil {
				if errors.Is(err, job.ErrNotFound) {
					return nil
				}
				return fmt.Errorf("get job: %w", err)
			}
			// Re-check against the current row: another recovery pass
			// or a late heartbeat may have already moved it on.
			if current.Status != job.StatusRunning || !policy.IsLeaseExpired(&current, now) {
				return nil
			}

			if err := tx.IncrementAttempts(ctx, jobID); err != nil {
				return fmt.Errorf("increment attempts: %w", err)
			}
			attemptsAfter := current.Attempts + 1
			if attemptsAfter < current.MaxAttempts {
				nextRunAt := policy.ComputeNextRunAt(now, attemptsAfter)
				if err := tx.SetQueuedForRetry(ctx, jobID, nextRunAt); err != nil {
					return fmt.Errorf("set queued for retry: %w", err)
				}
				reclaimed++
				return nil
			}
			if err := tx.SetDead(ctx, jobID, "Lease expired - worker presumed dead"); err != nil {
				return fmt.Errorf("set dead: %w", err)
			}
			return nil
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to recover expired lease", "job_id", jobID, "error", err)
			continue
		}
	}
	return reclaimed, nil
}
