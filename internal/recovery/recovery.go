// Package recovery runs the periodic sweep that reclaims jobs whose lease
// expired without a matching heartbeat or completion. It deliberately
// carries no exclusive-leader election: RecoverExpired is safe to run concurrently from any number of
// processes because each row transition is transactional and idempotent
// against the row's currently observed lease_expires_at.
package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/durableq/jobqueue/internal/lease"
)

// Scheduler ticks every interval and calls LeaseCoordinator.RecoverExpired.
type Scheduler struct {
	coordinator *lease.Coordinator
	interval    time.Duration
}

// New builds a Scheduler that sweeps every interval.
func New(coordinator *lease.Coordinator, interval time.Duration) *Scheduler {
	return &Scheduler{coordinator: coordinator, interval: interval}
}

// Run ticks until ctx is cancelled, logging the reclaimed count each sweep.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "recovery scheduler stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	reclaimed, err := s.coordinator.RecoverExpired(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "recovery sweep failed", "error", err)
		return
	}
	if reclaimed > 0 {
		slog.InfoContext(ctx, "recovery sweep reclaimed jobs", "count", reclaimed)
	} else {
		slog.DebugContext(ctx, "recovery sweep found nothing to reclaim")
	}
}
