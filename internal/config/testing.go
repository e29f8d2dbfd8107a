package config

import (
	"fmt"

	"github.com/durableq/jobqueue/internal/env"
)

// TestConfig holds configuration for Postgres-backed integration tests.
type TestConfig struct {
	Database DatabaseConfig
}

// LoadTestConfig loads and validates test configuration from the
// environment. Callers skip the test (rather than failing it) when this
// returns ErrDSNRequired.
func LoadTestConfig() (*TestConfig, error) {
	cfg := &TestConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("load test config: %w", err)
	}

	return cfg, nil
}
