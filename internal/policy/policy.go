// Package policy holds the pure decision functions behind the
// claim/lease/complete/recover state machine. Every function takes "now"
// explicitly and performs no I/O, so it can be tested without a clock or a
// store.
package policy

import (
	"time"

	"github.com/durableq/jobqueue/internal/job"
)

const (
	// BaseRetryDelay is the backoff unit for RetryDelay.
	BaseRetryDelay = 5 * time.Second
	// MaxRetryDelay bounds RetryDelay regardless of attempts.
	MaxRetryDelay = 3600 * time.Second
)

// ComputeLeaseExpiry returns the instant a freshly-claimed or
// freshly-heartbeated lease expires.
func ComputeLeaseExpiry(now time.Time, leaseSeconds int) time.Time {
	return now.Add(time.Duration(leaseSeconds) * time.Second)
}

// RetryDelay returns the backoff before the next attempt, given the number
// of failures so far including the current one: min(base * 2^attempts,
// max_delay). Monotone non-decreasing in attempts, bounded above by
// MaxRetryDelay.
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// 2^10 * base already exceeds MaxRetryDelay, so anything at or past
	// that shift saturates without risking a Duration overflow.
	if attempts >= 10 {
		return MaxRetryDelay
	}
	delay := BaseRetryDelay * time.Duration(uint(1)<<uint(attempts))
	if delay > MaxRetryDelay {
		return MaxRetryDelay
	}
	return delay
}

// ComputeNextRunAt returns the instant a retried job becomes eligible again.
func ComputeNextRunAt(now time.Time, attempts int) time.Time {
	return now.Add(RetryDelay(attempts))
}

// CanClaim reports whether j is eligible for ClaimNext at now.
func CanClaim(j *job.Job, now time.Time) bool {
	if j == nil {
		return false
	}
	if j.Status != job.StatusQueued && j.Status != job.StatusScheduled {
		return false
	}
	return !j.RunAt.After(now)
}

// OwnsLease reports whether workerID currently holds j's lease.
func OwnsLease(j *job.Job, workerID string) bool {
	if j == nil {
		return false
	}
	if j.Status != job.StatusRunning {
		return false
	}
	return j.LeaseOwner != nil && *j.LeaseOwner == workerID
}

// IsLeaseExpired reports whether j's lease is missing or has expired as of
// now.
func IsLeaseExpired(j *job.Job, now time.Time) bool {
	if j == nil || j.LeaseExpiresAt == nil {
		return true
	}
	return j.LeaseExpiresAt.Before(now)
}

// HasRetriesRemaining reports whether j may still be attempted again.
func HasRetriesRemaining(j *job.Job) bool {
	if j == nil {
		return false
	}
	return j.Attempts < j.MaxAttempts
}

// Completion is the outcome Complete must apply, decided before the
// attempts counter is incremented so the caller can perform the increment
// and the status change in a single transaction.
type Completion int

const (
	CompletionSucceeded Completion = iota
	CompletionRetry
	CompletionDead
)

// DecideCompletion decides the post-attempt transition for j given whether
// the attempt succeeded. attempts+1 (the count after the caller increments
// it) is compared against MaxAttempts, not the pre-increment count.
func DecideCompletion(j *job.Job, success bool) Completion {
	if success {
		return CompletionSucceeded
	}
	if j.Attempts+1 >= j.MaxAttempts {
		return CompletionDead
	}
	return CompletionRetry
}
