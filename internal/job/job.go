// Package job defines the Job entity and its lifecycle that every other
// package in this module operates on.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the job's position in the claim/lease/complete/recover state
// machine.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusDead      Status = "dead"
)

// Terminal reports whether status is one of the absorbing states that only
// an explicit retry can leave.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusCancelled, StatusDead:
		return true
	default:
		return false
	}
}

// Job is the single persisted entity the core operates on. Payload is an
// opaque JSON value; the core never inspects it, handlers own their own
// schema.
type Job struct {
	ID          uuid.UUID
	Queue       string
	Handler     string
	Payload     json.RawMessage
	Status      Status
	RunAt       time.Time
	Priority    int
	MaxAttempts int
	Attempts    int
	TimeoutSecs int

	LeaseOwner     *string
	LeaseExpiresAt *time.Time
	HeartbeatAt    *time.Time

	LastError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a Job ready to persist: a fresh V7 id, status decided by
// whether RunAt is already due, attempts at zero, no lease.
func New(queue, handler string, payload json.RawMessage, runAt time.Time, priority, maxAttempts, timeoutSecs int, now time.Time) Job {
	status := StatusQueued
	if runAt.After(now) {
		status = StatusScheduled
	}
	return Job{
		ID:          uuid.Must(uuid.NewV7()),
		Queue:       queue,
		Handler:     handler,
		Payload:     payload,
		Status:      status,
		RunAt:       runAt,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Attempts:    0,
		TimeoutSecs: timeoutSecs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Fields is the subset of attributes the admin API may patch after
// creation (spec.md §6's Admin API update operation). A nil pointer means
// "leave unchanged". The lease/status/attempt fields are never patched
// through Fields; they only change through the named JobStore transitions.
type Fields struct {
	Priority    *int
	RunAt       *time.Time
	MaxAttempts *int
	TimeoutSecs *int
}

// ListFilter narrows JobStore.List to jobs matching the given queue,
// handler, and/or status. A nil pointer means "no filter on this field".
type ListFilter struct {
	Queue   *string
	Handler *string
	Status  *Status
}
