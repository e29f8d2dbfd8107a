package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/durableq/jobqueue/internal/config"
)

// setupTestStore builds a Store against JOBQ_DB_DSN, migrating and
// truncating the jobs table so each test starts from an empty queue.
// Skips the test (rather than failing it) when no DSN is configured.
func setupTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	cfg, err := config.LoadTestConfig()
	if err != nil {
		t.Skipf("skipping postgres integration test: %v (set JOBQ_DB_DSN to run)", err)
	}

	ctx := context.Background()
	store, err := NewStore(ctx, Config{DSN: cfg.Database.DSN})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), "TRUNCATE TABLE jobs")
		store.Close()
	})

	_, err = store.pool.Exec(ctx, "TRUNCATE TABLE jobs")
	require.NoError(t, err)

	return store, ctx
}
