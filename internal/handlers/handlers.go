// Package handlers provides a few illustrative job handlers so cmd/worker
// is runnable end to end rather than a library with nothing registered.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// Noop succeeds immediately without inspecting the payload.
func Noop(ctx context.Context, payload json.RawMessage) error {
	return nil
}

// Echo logs the payload it was given and succeeds.
func Echo(ctx context.Context, payload json.RawMessage) error {
	slog.InfoContext(ctx, "echo handler invoked", "payload", string(payload))
	return nil
}

// ErrAlwaysFail is the error AlwaysFail always returns, useful for
// exercising the retry/dead-letter path in development.
var ErrAlwaysFail = errors.New("always_fail handler intentionally failed")

// AlwaysFail unconditionally fails, useful for exercising the retry/dead
// letter path.
func AlwaysFail(ctx context.Context, payload json.RawMessage) error {
	return ErrAlwaysFail
}
