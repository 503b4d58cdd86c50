package dispatch

import (
	"context"
	"fmt"

	"flowgate-hq/flowgate/pkg/action"
)

// RunResult is what an execution backend reports for one target.
type RunResult struct {
	// ExitCode is the backend operation's exit indicator.
	ExitCode int

	// Output is the operation's output text. The dispatcher redacts it
	// before it reaches the audit trail or the caller.
	Output string
}

// Backend performs the already-authorized operation against one target.
// Implementations are external collaborators (remote shell, cluster
// API, log retrieval); the dispatcher is their only caller. Run must
// honor ctx cancellation for its own cleanup, but the dispatcher never
// cancels a started run: once dispatched, an operation is allowed to
// finish.
type Backend interface {
	Run(ctx context.Context, req *action.Request, target string) (*RunResult, error)
}

// BackendError wraps a backend failure with the target it occurred on.
type BackendError struct {
	Target string
	Cause  error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("backend error [target=%s]: %v", e.Target, e.Cause)
	}
	return fmt.Sprintf("backend error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *BackendError) Unwrap() error {
	return e.Cause
}
