package job

import "errors"

var (
	// ErrNotFound is returned when a job id has no matching row.
	ErrNotFound = errors.New("job not found")

	// ErrNotCancellable is returned when cancel is attempted on a job
	// already in a terminal state.
	ErrNotCancellable = errors.New("job is already in a terminal state")

	// ErrNotRetriable is returned when retry is attempted on a job that
	// is not failed or dead.
	ErrNotRetriable = errors.New("job is not failed or dead")
)
