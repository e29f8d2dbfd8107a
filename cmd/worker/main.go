// Command worker is the composition root: it loads configuration, builds
// the Postgres-backed job store, registers the example handlers, and runs
// a pool of worker loops alongside the recovery scheduler until an
// interrupt or terminate signal arrives.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/durableq/jobqueue/internal/clock"
	"github.com/durableq/jobqueue/internal/config"
	"github.com/durableq/jobqueue/internal/executor"
	"github.com/durableq/jobqueue/internal/handlers"
	"github.com/durableq/jobqueue/internal/lease"
	"github.com/durableq/jobqueue/internal/observability"
	"github.com/durableq/jobqueue/internal/postgres"
	"github.com/durableq/jobqueue/internal/recovery"
	"github.com/durableq/jobqueue/internal/registry"
	"github.com/durableq/jobqueue/internal/workerloop"
)

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("load worker config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.OTelEnabled,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		log.Fatalf("init observability: %v", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			slog.Error("shutdown observability providers", "error", err)
		}
	}()

	store, err := postgres.NewStore(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: secondsToDuration(cfg.Database.ConnMaxLifetime),
		ConnMaxIdleTime: secondsToDuration(cfg.Database.ConnMaxIdleTime),
	})
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer store.Close()

	reg := registry.New()
	mustRegister(reg, "noop", handlers.Noop)
	mustRegister(reg, "echo", handlers.Echo)
	mustRegister(reg, "always_fail", handlers.AlwaysFail)

	clk := clock.Real{}
	coordinator := lease.New(store, clk)
	exec := executor.New(reg)
	queues := cfg.QueueList()

	slog.InfoContext(ctx, "starting worker",
		"worker_id", cfg.WorkerID,
		"queues", queues,
		"concurrency", cfg.Concurrency)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		recovery.New(coordinator, cfg.RecoveryInterval).Run(ctx)
	}()

	workerloop.RunPool(ctx, cfg.WorkerID, cfg.Concurrency, queues, coordinator, exec,
		workerloop.WithPollInterval(cfg.PollInterval),
		workerloop.WithLeaseSeconds(cfg.LeaseSeconds),
	)

	wg.Wait()
	slog.InfoContext(context.Background(), "worker stopped")
}

func mustRegister(reg *registry.Registry, name string, fn registry.Handler) {
	if err := reg.Register(name, fn); err != nil {
		log.Fatalf("register handler %q: %v", name, err)
	}
}

// secondsToDuration adapts the integer "seconds" fields config.DatabaseConfig
// stores into the time.Duration postgres.Config expects.
func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
