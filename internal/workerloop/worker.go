// Package workerloop runs the long-running claim/execute/complete cycle
// against a LeaseCoordinator: poll backoff when the queue is empty,
// graceful shutdown, and stat counters, as a loop that sleeps on a
// timer+select between claims.
package workerloop

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/durableq/jobqueue/internal/executor"
	"github.com/durableq/jobqueue/internal/lease"
)

// Stats are the worker's running counters, safe for concurrent reads while
// the loop is active.
type Stats struct {
	Processed atomic.Int64
	Succeeded atomic.Int64
	Failed    atomic.Int64
}

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithPollInterval overrides how long the loop sleeps after an empty claim.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

// WithLeaseSeconds overrides the lease duration stamped on every claim.
func WithLeaseSeconds(seconds int) Option {
	return func(w *Worker) { w.leaseSeconds = seconds }
}

// WithErrorSleep overrides how long the loop pauses after an unexpected
// error claiming or completing a job.
func WithErrorSleep(d time.Duration) Option {
	return func(w *Worker) { w.errorSleep = d }
}

// Worker runs the claim -> execute -> complete cycle for one worker
// identity against a fixed set of queues.
type Worker struct {
	id           string
	queues       []string
	coordinator  *lease.Coordinator
	executor     *executor.Executor
	pollInterval time.Duration
	leaseSeconds int
	errorSleep   time.Duration

	Stats Stats
}

// New builds a Worker with sane defaults, applying opts in order.
func New(id string, queues []string, coordinator *lease.Coordinator, exec *executor.Executor, opts ...Option) *Worker {
	w := &Worker{
		id:           id,
		queues:       queues,
		coordinator:  coordinator,
		executor:     exec,
		pollInterval: 2 * time.Second,
		leaseSeconds: 60,
		errorSleep:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the main loop until ctx is cancelled. It stops accepting new
// claims once ctx is done, finishes any job already in flight, then
// returns. It never forges a completion the handler didn't produce: if the
// process dies mid-job, recovery handles it.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "worker loop stopping", "worker_id", w.id)
			return
		default:
		}

		claimed, err := w.runOnce(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "worker loop error", "worker_id", w.id, "error", err)
			w.sleep(ctx, w.errorSleep)
			continue
		}
		if !claimed {
			w.sleep(ctx, w.pollInterval)
		}
	}
}

// runOnce claims at most one job, executes it, and reports completion. It
// returns claimed=true whenever a job was claimed, regardless of whether it
// succeeded, so the caller can skip the poll sleep.
func (w *Worker) runOnce(ctx context.Context) (claimed bool, err error) {
	j, found, err := w.coordinator.ClaimNext(ctx, w.id, w.queues, w.leaseSeconds)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	slog.InfoContext(ctx, "claimed job", "worker_id", w.id, "job_id", j.ID, "handler", j.Handler, "queue", j.Queue)

	result := w.executor.Run(ctx, j)

	owned, err := w.coordinator.Complete(ctx, j.ID, w.id, result.Success, result.ErrorMessage)
	if err != nil {
		return true, err
	}
	if !owned {
		slog.WarnContext(ctx, "lost lease before completing job; discarding result", "worker_id", w.id, "job_id", j.ID)
		return true, nil
	}

	w.Stats.Processed.Add(1)
	if result.Success {
		w.Stats.Succeeded.Add(1)
		slog.InfoContext(ctx, "job succeeded", "worker_id", w.id, "job_id", j.ID, "duration_seconds", result.DurationSeconds)
	} else {
		w.Stats.Failed.Add(1)
		slog.WarnContext(ctx, "job failed", "worker_id", w.id, "job_id", j.ID, "error", result.ErrorMessage, "duration_seconds", result.DurationSeconds)
	}
	return true, nil
}

// sleep waits for d, returning as soon as ctx is done so shutdown latency
// stays bounded even for long poll intervals.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// RunPool starts n Workers sharing the same coordinator/executor/queues,
// each with its own worker identity, and waits for every one to exit.
func RunPool(ctx context.Context, baseID string, n int, queues []string, coordinator *lease.Coordinator, exec *executor.Executor, opts ...Option) []*Worker {
	var wg sync.WaitGroup
	workers := make([]*Worker, n)
	for i := 0; i < n; i++ {
		w := New(workerID(baseID, i), queues, coordinator, exec, opts...)
		workers[i] = w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	wg.Wait()
	return workers
}

func workerID(base string, index int) string {
	if index == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(index)
}
