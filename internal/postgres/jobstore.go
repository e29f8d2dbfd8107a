package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/durableq/jobqueue/internal/job"
	"github.com/durableq/jobqueue/internal/jobqueue"
)

const jobColumns = `id, queue, handler, payload, status, run_at, priority, max_attempts,
	attempts, timeout_secs, lease_owner, lease_expires_at, heartbeat_at,
	last_error, created_at, updated_at`

func scanJob(row pgx.Row) (job.Job, error) {
	var j job.Job
	var status string
	err := row.Scan(
		&j.ID, &j.Queue, &j.Handler, &j.Payload, &status, &j.RunAt, &j.Priority,
		&j.MaxAttempts, &j.Attempts, &j.TimeoutSecs, &j.LeaseOwner, &j.LeaseExpiresAt,
		&j.HeartbeatAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, err
	}
	j.Status = job.Status(status)
	return j, nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (job.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, fmt.Errorf("scan job: %w", err)
	}
	return j, nil
}

// Create inserts j and returns the persisted row.
func (s *Store) Create(ctx context.Context, j job.Job) (job.Job, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO jobs (id, queue, handler, payload, status, run_at, priority,
			max_attempts, attempts, timeout_secs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING `+jobColumns,
		j.ID, j.Queue, j.Handler, j.Payload, string(j.Status), j.RunAt, j.Priority,
		j.MaxAttempts, j.Attempts, j.TimeoutSecs, j.CreatedAt,
	)
	created, err := scanJob(row)
	if err != nil {
		return job.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return created, nil
}

// Delete removes a job outright.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrNotFound
	}
	return nil
}

// UpdateFields patches the mutable subset of fields.
func (s *Store) UpdateFields(ctx context.Context, id uuid.UUID, fields job.Fields) (job.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs SET
			priority     = COALESCE($2, priority),
			run_at       = COALESCE($3, run_at),
			max_attempts = COALESCE($4, max_attempts),
			timeout_secs = COALESCE($5, timeout_secs),
			updated_at   = now()
		WHERE id = $1
		RETURNING `+jobColumns,
		id, fields.Priority, fields.RunAt, fields.MaxAttempts, fields.TimeoutSecs,
	)
	updated, err := scanJob(row)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, fmt.Errorf("update job fields: %w", err)
	}
	return updated, nil
}

// List returns jobs matching filter, ordered by created_at descending,
// paginated by offset/limit, plus the total matching count.
func (s *Store) List(ctx context.Context, filter job.ListFilter, offset, limit int) (jobqueue.ListResult, error) {
	where := "WHERE ($1::text IS NULL OR queue = $1) AND ($2::text IS NULL OR handler = $2) AND ($3::text IS NULL OR status = $3)"
	var queue, handler, status *string
	if filter.Queue != nil {
		queue = filter.Queue
	}
	if filter.Handler != nil {
		handler = filter.Handler
	}
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM jobs `+where, queue, handler, status).Scan(&total); err != nil {
		return jobqueue.ListResult{}, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs `+where+`
		ORDER BY created_at DESC OFFSET $4 LIMIT $5`, queue, handler, status, offset, limit)
	if err != nil {
		return jobqueue.ListResult{}, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return jobqueue.ListResult{}, fmt.Errorf("scan listed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return jobqueue.ListResult{}, fmt.Errorf("iterate listed jobs: %w", err)
	}

	return jobqueue.ListResult{Jobs: jobs, Total: total}, nil
}

// FindNextRunnable locks and returns the single highest-priority claimable
// job across queues, using the strict total order spec.md §4.2 requires:
// priority desc, run_at asc, created_at asc, id asc as the final tiebreaker.
// FOR UPDATE SKIP LOCKED hides the row from concurrent callers for the
// duration of the enclosing transaction.
func (s *Store) FindNextRunnable(ctx context.Context, queues []string, now time.Time) (job.Job, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE queue = ANY($1)
			AND status IN ('queued', 'scheduled')
			AND run_at <= $2
		ORDER BY priority DESC, run_at ASC, created_at ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, queues, now)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, fmt.Errorf("find next runnable job: %w", err)
	}
	return j, nil
}

// FindExpiredLeases returns every running job whose lease has expired.
func (s *Store) FindExpiredLeases(ctx context.Context, now time.Time) ([]job.Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'running' AND lease_expires_at < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("find expired leases: %w", err)
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired lease job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) exec1(ctx context.Context, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrNotFound
	}
	return nil
}

// SetRunning transitions a claimed job to running with a fresh lease.
func (s *Store) SetRunning(ctx context.Context, id uuid.UUID, owner string, expiresAt, heartbeatAt time.Time) error {
	return s.exec1(ctx, `
		UPDATE jobs SET status = 'running', lease_owner = $2, lease_expires_at = $3,
			heartbeat_at = $4, updated_at = now()
		WHERE id = $1`, id, owner, expiresAt, heartbeatAt)
}

// SetHeartbeat extends a running job's lease.
func (s *Store) SetHeartbeat(ctx context.Context, id uuid.UUID, expiresAt, heartbeatAt time.Time) error {
	return s.exec1(ctx, `
		UPDATE jobs SET lease_expires_at = $2, heartbeat_at = $3, updated_at = now()
		WHERE id = $1`, id, expiresAt, heartbeatAt)
}

// SetSucceeded terminates a job successfully, clearing its lease.
func (s *Store) SetSucceeded(ctx context.Context, id uuid.UUID) error {
	return s.exec1(ctx, `
		UPDATE jobs SET status = 'succeeded', lease_owner = NULL, lease_expires_at = NULL,
			updated_at = now()
		WHERE id = $1`, id)
}

// SetFailed sets the job's status to failed and records errMsg as
// last_error, clearing its lease. Used as the first half of the retry
// transition.
func (s *Store) SetFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.exec1(ctx, `
		UPDATE jobs SET status = 'failed', last_error = $2, lease_owner = NULL,
			lease_expires_at = NULL, updated_at = now()
		WHERE id = $1`, id, errMsg)
}

// SetDead terminates a job permanently, clearing its lease.
func (s *Store) SetDead(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.exec1(ctx, `
		UPDATE jobs SET status = 'dead', last_error = $2, lease_owner = NULL,
			lease_expires_at = NULL, updated_at = now()
		WHERE id = $1`, id, errMsg)
}

// SetQueuedForRetry re-queues a job at runAt, clearing its lease.
func (s *Store) SetQueuedForRetry(ctx context.Context, id uuid.UUID, runAt time.Time) error {
	return s.exec1(ctx, `
		UPDATE jobs SET status = 'queued', run_at = $2, lease_owner = NULL,
			lease_expires_at = NULL, updated_at = now()
		WHERE id = $1`, id, runAt)
}

// IncrementAttempts bumps the job's attempt counter.
func (s *Store) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	return s.exec1(ctx, `UPDATE jobs SET attempts = attempts + 1, updated_at = now() WHERE id = $1`, id)
}

// SetCancelled moves a non-terminal job to cancelled, clearing its lease.
func (s *Store) SetCancelled(ctx context.Context, id uuid.UUID) error {
	return s.exec1(ctx, `
		UPDATE jobs SET status = 'cancelled', lease_owner = NULL, lease_expires_at = NULL,
			updated_at = now()
		WHERE id = $1`, id)
}

// SetRetried re-enters a failed|dead job into queued, resetting attempts
// and clearing last_error and the lease.
func (s *Store) SetRetried(ctx context.Context, id uuid.UUID, runAt time.Time) error {
	return s.exec1(ctx, `
		UPDATE jobs SET status = 'queued', run_at = $2, attempts = 0, last_error = NULL,
			lease_owner = NULL, lease_expires_at = NULL, updated_at = now()
		WHERE id = $1`, id, runAt)
}
