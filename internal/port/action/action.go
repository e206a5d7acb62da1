// Package action defines the port for executing tool calls against the
// external action system.
package action

import (
	"context"

	"github.com/clearfield/triage/internal/domain/toolcall"
)

// Executor runs one tool call and returns its result payload. Invoked by
// the governor for read-only, display, and confirmed calls only; the
// governor guarantees confirm-required calls never reach it without an
// explicit approval signal.
type Executor interface {
	Execute(ctx context.Context, tool toolcall.Tool, args map[string]string) (string, error)
}
