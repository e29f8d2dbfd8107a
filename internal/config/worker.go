package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/durableq/jobqueue/internal/env"
)

// WorkerConfig holds all configuration for the worker binary: worker
// identity, the queues it drains, and the timing parameters that feed
// policy and the lease coordinator.
type WorkerConfig struct {
	Database DatabaseConfig

	WorkerID         string        `env:"JOBQ_WORKER_ID"`
	Queues           string        `env:"JOBQ_QUEUES"`
	Concurrency      int           `env:"JOBQ_WORKER_CONCURRENCY"`
	PollInterval     time.Duration `env:"JOBQ_POLL_INTERVAL"`
	LeaseSeconds     int           `env:"JOBQ_LEASE_SECONDS"`
	RecoveryInterval time.Duration `env:"JOBQ_RECOVERY_INTERVAL"`

	Observability ObservabilityConfig
}

// QueueList splits the comma-separated Queues field into a trimmed,
// non-empty slice. env.Load has no slice support, so the CSV encoding is
// parsed here instead of in the loader.
func (c WorkerConfig) QueueList() []string {
	parts := strings.Split(c.Queues, ",")
	queues := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			queues = append(queues, p)
		}
	}
	return queues
}

// Validate applies defaults and rejects the one configuration error that
// belongs here: an empty queues list. An unreachable store is caught later,
// when the connection pool is created.
func (c *WorkerConfig) Validate() error {
	if c.WorkerID == "" {
		c.WorkerID = "worker-1"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.LeaseSeconds <= 0 {
		c.LeaseSeconds = 60
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = 30 * time.Second
	}
	if len(c.QueueList()) == 0 {
		return fmt.Errorf("JOBQ_QUEUES must name at least one queue")
	}
	return nil
}

// LoadWorkerConfig loads and validates worker configuration from the
// environment.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}
	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("load worker config: %w", err)
	}
	return cfg, nil
}
