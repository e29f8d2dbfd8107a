// Package jobqueuetest provides an in-memory jobqueue.JobStore fake so
// LeaseCoordinator's orchestration logic can be exercised with goroutines
// and a fake clock, without a database. Modeled on the hand-rolled
// function-field mock style used for Repository in this module's teacher
// lineage.
package jobqueuetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/durableq/jobqueue/internal/job"
	"github.com/durableq/jobqueue/internal/jobqueue"
)

// Store is a map-backed JobStore guarded by a single mutex. FindNextRunnable
// emulates SELECT ... FOR UPDATE SKIP LOCKED by holding the store's lock for
// the duration of the enclosing WithTx call, which is sufficient to exercise
// the concurrency property from outside: at most one concurrent ClaimNext
// observes a given row as claimable.
type Store struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]job.Job
}

// New returns an empty fake store.
func New() *Store {
	return &Store{jobs: make(map[uuid.UUID]job.Job)}
}

var _ jobqueue.JobStore = (*Store)(nil)

// WithTx serializes fn against the store's lock, so callers observe the
// same all-or-nothing semantics a real transaction gives LeaseCoordinator.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx jobqueue.JobStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, s)
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (job.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, job.ErrNotFound
	}
	return j, nil
}

func (s *Store) Create(_ context.Context, j job.Job) (job.Job, error) {
	s.jobs[j.ID] = j
	return j, nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.jobs[id]; !ok {
		return job.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *Store) UpdateFields(_ context.Context, id uuid.UUID, fields job.Fields) (job.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, job.ErrNotFound
	}
	if fields.Priority != nil {
		j.Priority = *fields.Priority
	}
	if fields.RunAt != nil {
		j.RunAt = *fields.RunAt
	}
	if fields.MaxAttempts != nil {
		j.MaxAttempts = *fields.MaxAttempts
	}
	if fields.TimeoutSecs != nil {
		j.TimeoutSecs = *fields.TimeoutSecs
	}
	s.jobs[id] = j
	return j, nil
}

func (s *Store) List(_ context.Context, filter job.ListFilter, offset, limit int) (jobqueue.ListResult, error) {
	matched := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if filter.Queue != nil && j.Queue != *filter.Queue {
			continue
		}
		if filter.Handler != nil && j.Handler != *filter.Handler {
			continue
		}
		if filter.Status != nil && j.Status != *filter.Status {
			continue
		}
		matched = append(matched, j)
	}
	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.Before(matched[k].CreatedAt)
	})
	total := len(matched)
	if offset >= total {
		return jobqueue.ListResult{Total: total}, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return jobqueue.ListResult{Jobs: matched[offset:end], Total: total}, nil
}

// FindNextRunnable picks the claimable job with the strict total order from
// spec.md §4.2: priority desc, run_at asc, created_at asc, id asc.
func (s *Store) FindNextRunnable(_ context.Context, queues []string, now time.Time) (job.Job, error) {
	allowed := make(map[string]bool, len(queues))
	for _, q := range queues {
		allowed[q] = true
	}

	var best *job.Job
	for id := range s.jobs {
		j := s.jobs[id]
		if !allowed[j.Queue] {
			continue
		}
		if j.Status != job.StatusQueued && j.Status != job.StatusScheduled {
			continue
		}
		if j.RunAt.After(now) {
			continue
		}
		if best == nil || isBetterClaim(j, *best) {
			jCopy := j
			best = &jCopy
		}
	}
	if best == nil {
		return job.Job{}, job.ErrNotFound
	}
	return *best, nil
}

func isBetterClaim(candidate, current job.Job) bool {
	if candidate.Priority != current.Priority {
		return candidate.Priority > current.Priority
	}
	if !candidate.RunAt.Equal(current.RunAt) {
		return candidate.RunAt.Before(current.RunAt)
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.ID.String() < current.ID.String()
}

func (s *Store) FindExpiredLeases(_ context.Context, now time.Time) ([]job.Job, error) {
	var out []job.Job
	for _, j := range s.jobs {
		if j.Status != job.StatusRunning {
			continue
		}
		if j.LeaseExpiresAt == nil || j.LeaseExpiresAt.Before(now) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *Store) SetRunning(_ context.Context, id uuid.UUID, owner string, expiresAt, heartbeatAt time.Time) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Status = job.StatusRunning
	j.LeaseOwner = &owner
	j.LeaseExpiresAt = &expiresAt
	j.HeartbeatAt = &heartbeatAt
	s.jobs[id] = j
	return nil
}

func (s *Store) SetHeartbeat(_ context.Context, id uuid.UUID, expiresAt, heartbeatAt time.Time) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.LeaseExpiresAt = &expiresAt
	j.HeartbeatAt = &heartbeatAt
	s.jobs[id] = j
	return nil
}

func (s *Store) SetSucceeded(_ context.Context, id uuid.UUID) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Status = job.StatusSucceeded
	j.LeaseOwner = nil
	j.LeaseExpiresAt = nil
	s.jobs[id] = j
	return nil
}

func (s *Store) SetFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Status = job.StatusFailed
	j.LastError = &errMsg
	j.LeaseOwner = nil
	j.LeaseExpiresAt = nil
	s.jobs[id] = j
	return nil
}

func (s *Store) SetDead(_ context.Context, id uuid.UUID, errMsg string) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Status = job.StatusDead
	j.LastError = &errMsg
	j.LeaseOwner = nil
	j.LeaseExpiresAt = nil
	s.jobs[id] = j
	return nil
}

func (s *Store) SetQueuedForRetry(_ context.Context, id uuid.UUID, runAt time.Time) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Status = job.StatusQueued
	j.RunAt = runAt
	j.LeaseOwner = nil
	j.LeaseExpiresAt = nil
	s.jobs[id] = j
	return nil
}

func (s *Store) IncrementAttempts(_ context.Context, id uuid.UUID) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Attempts++
	s.jobs[id] = j
	return nil
}

func (s *Store) SetCancelled(_ context.Context, id uuid.UUID) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Status = job.StatusCancelled
	j.LeaseOwner = nil
	j.LeaseExpiresAt = nil
	s.jobs[id] = j
	return nil
}

func (s *Store) SetRetried(_ context.Context, id uuid.UUID, runAt time.Time) error {
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Status = job.StatusQueued
	j.RunAt = runAt
	j.Attempts = 0
	j.LastError = nil
	j.LeaseOwner = nil
	j.LeaseExpiresAt = nil
	s.jobs[id] = j
	return nil
}
