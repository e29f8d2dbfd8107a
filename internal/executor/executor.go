// Package executor resolves a job's handler by name and runs it, converting
// whatever the handler does (return, error, or panic) into a structured
// Result. The executor performs no I/O on the job store; it never
// heartbeats.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/durableq/jobqueue/internal/job"
	"github.com/durableq/jobqueue/internal/registry"
)

// PanicError wraps a recovered handler panic, keeping the stack trace
// alongside the panic value for logging without putting the trace in the
// job's persisted last_error.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Result is what the worker loop feeds into LeaseCoordinator.Complete.
type Result struct {
	Success         bool
	ErrorMessage    string
	DurationSeconds float64
}

// Executor runs a handler resolved from a Registry.
type Executor struct {
	registry *registry.Registry
}

// New builds an Executor over reg.
func New(reg *registry.Registry) *Executor {
	return &Executor{registry: reg}
}

// Run resolves j.Handler and invokes it with j.Payload, timing the call and
// catching any error or panic as a failure Result.
func (e *Executor) Run(ctx context.Context, j job.Job) Result {
	handler, err := e.registry.Get(j.Handler)
	if err != nil {
		return Result{
			Success:      false,
			ErrorMessage: fmt.Sprintf("Handler '%s' not registered. Available: %v", j.Handler, e.registry.List()),
		}
	}

	start := time.Now()
	panicErr, err := e.invoke(ctx, handler, j)
	duration := time.Since(start).Seconds()

	if panicErr != nil {
		return Result{Success: false, ErrorMessage: formatError(panicErr), DurationSeconds: duration}
	}
	if err != nil {
		return Result{Success: false, ErrorMessage: formatError(err), DurationSeconds: duration}
	}
	return Result{Success: true, DurationSeconds: duration}
}

// invoke runs handler, recovering a panic into a *PanicError so callers can
// tell a handler-raised error apart from a crash while formatting both the
// same way.
func (e *Executor) invoke(ctx context.Context, handler registry.Handler, j job.Job) (panicErr *PanicError, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr = &PanicError{Value: r, StackTrace: string(debug.Stack())}
		}
	}()

	err = handler(ctx, j.Payload)
	return panicErr, err
}

// formatError renders err as "<ErrorKind>: <message>", or just
// "<ErrorKind>" when the message is empty.
func formatError(err error) string {
	msg := err.Error()
	if msg == "" {
		return fmt.Sprintf("%T", err)
	}
	return fmt.Sprintf("%T: %s", err, msg)
}
