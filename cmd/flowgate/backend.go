package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"

	"flowgate-hq/flowgate/pkg/action"
	"flowgate-hq/flowgate/pkg/dispatch"
)

// localExecBackend runs action commands through the local shell. It is
// demo wiring for single-host use; a real deployment substitutes a
// transport to the named targets. The target name is exposed to the
// command via FLOWGATE_TARGET.
type localExecBackend struct {
	logger *slog.Logger
}

func newLocalExecBackend() *localExecBackend {
	return &localExecBackend{
		logger: slog.Default().With("component", "exec-backend"),
	}
}

// Run executes the action's command and reports its exit code and
// combined output. A non-zero exit is a result, not an error; errors
// mean the command could not be run at all.
func (b *localExecBackend) Run(ctx context.Context, req *action.Request, target string) (*dispatch.RunResult, error) {
	command, _ := req.Params["command"].(string)
	if command == "" {
		return nil, &dispatch.BackendError{Target: target, Cause: errors.New("params.command is required")}
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Env = os.Environ()
	if target != "" {
		cmd.Env = append(cmd.Env, "FLOWGATE_TARGET="+target)
	}

	b.logger.Debug("running command", "request_id", req.RequestID, "target", target)

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &dispatch.RunResult{ExitCode: exitErr.ExitCode(), Output: string(output)}, nil
		}
		return nil, &dispatch.BackendError{Target: target, Cause: err}
	}

	return &dispatch.RunResult{ExitCode: 0, Output: string(output)}, nil
}
