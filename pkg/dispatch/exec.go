package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"flowgate-hq/flowgate/pkg/action"
	"flowgate-hq/flowgate/pkg/redact"
)

// runTargets executes the action against its targets. Actions without a
// target list run once; batch actions fan out under the bounded worker
// pool with per-target outcomes collected independently. The second
// return value is the failure kind for the audit record, empty on full
// success.
func (d *Dispatcher) runTargets(ctx context.Context, req *action.Request) (*ExecutionOutcome, string) {
	timeout := d.targetTimeout(req)

	if len(req.Targets) == 0 {
		result := d.runOne(ctx, req, "", timeout)
		outcome := &ExecutionOutcome{
			Status:        aggregateStatus(result.Status),
			ExitCode:      result.ExitCode,
			OutputSummary: result.OutputSummary,
			Error:         result.Error,
			SuccessCount:  boolToCount(result.Status == TargetSuccess),
			FailureCount:  boolToCount(result.Status != TargetSuccess),
		}
		return outcome, failureKind([]*TargetOutcome{result})
	}

	continueOnError := d.config.ContinueOnError
	if req.ContinueOnError != nil {
		continueOnError = *req.ContinueOnError
	}

	results := make([]*TargetOutcome, len(req.Targets))
	sem := make(chan struct{}, d.config.MaxConcurrency)
	var (
		wg     sync.WaitGroup
		failed atomic.Bool
	)

	for i, target := range req.Targets {
		// Cancellation stops new targets; in-flight ones finish.
		if ctx.Err() != nil {
			results[i] = skippedOutcome(target, "not started: request canceled")
			continue
		}
		if !continueOnError && failed.Load() {
			results[i] = skippedOutcome(target, "not started: earlier target failed")
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = skippedOutcome(target, "not started: request canceled")
			continue
		}

		// Re-check after the slot wait: a failure that landed while
		// this target queued still short-circuits it.
		if !continueOnError && failed.Load() {
			<-sem
			results[i] = skippedOutcome(target, "not started: earlier target failed")
			continue
		}

		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			defer func() { <-sem }()

			result := d.runOne(ctx, req, target, timeout)
			if result.Status != TargetSuccess {
				failed.Store(true)
			}
			results[i] = result
		}(i, target)
	}

	wg.Wait()

	return aggregate(results), failureKind(results)
}

// failureKind maps per-target failures to the audit error kind. A batch
// where every failure is a timeout reports BackendTimeout; any other
// backend failure wins over timeouts.
func failureKind(results []*TargetOutcome) string {
	sawTimeout := false
	for _, r := range results {
		switch r.Status {
		case TargetTimeout:
			sawTimeout = true
		case TargetFailed:
			return ErrTypeBackendError
		}
	}
	if sawTimeout {
		return ErrTypeBackendTimeout
	}
	return ""
}

// runOne invokes the backend for a single target. The run context is
// detached from the caller's cancellation: a started operation against
// real infrastructure is never killed mid-flight, only bounded by its
// timeout.
func (d *Dispatcher) runOne(ctx context.Context, req *action.Request, target string, timeout time.Duration) *TargetOutcome {
	if d.metrics != nil {
		d.metrics.Dispatches().ExecutionStarted()
		defer d.metrics.Dispatches().ExecutionFinished()
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	result, err := d.backend.Run(runCtx, req, target)
	duration := time.Since(start)

	outcome := &TargetOutcome{
		Target:      target,
		DurationSec: duration.Seconds(),
	}

	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded):
		outcome.Status = TargetTimeout
		outcome.ExitCode = -1
		outcome.Error = fmt.Sprintf("execution timed out after %s", timeout)

	case err != nil:
		outcome.Status = TargetFailed
		outcome.ExitCode = -1
		outcome.Error = redact.MaskString(err.Error())

	case result.ExitCode != 0:
		outcome.Status = TargetFailed
		outcome.ExitCode = result.ExitCode
		outcome.OutputSummary = redact.MaskString(result.Output)
		outcome.Error = fmt.Sprintf("exited with code %d", result.ExitCode)

	default:
		outcome.Status = TargetSuccess
		outcome.OutputSummary = redact.MaskString(result.Output)
	}

	if d.metrics != nil {
		d.metrics.Dispatches().RecordTargetResult(req.Kind, string(outcome.Status), duration)
	}

	return outcome
}

// targetTimeout resolves the per-target timeout: the caller's value
// capped by the configured maximum, or the default when unset.
func (d *Dispatcher) targetTimeout(req *action.Request) time.Duration {
	if req.TimeoutSec <= 0 {
		return d.config.DefaultTimeout
	}
	timeout := time.Duration(req.TimeoutSec) * time.Second
	if timeout > d.config.MaxTimeout {
		return d.config.MaxTimeout
	}
	return timeout
}

// aggregate folds per-target outcomes into the batch result.
func aggregate(results []*TargetOutcome) *ExecutionOutcome {
	outcome := &ExecutionOutcome{PerTarget: results}

	var firstError string
	for _, r := range results {
		switch r.Status {
		case TargetSuccess:
			outcome.SuccessCount++
		case TargetSkipped:
			outcome.SkippedCount++
		default:
			outcome.FailureCount++
			if firstError == "" {
				firstError = fmt.Sprintf("%s: %s", r.Target, r.Error)
			}
		}
	}

	total := len(results)
	outcome.OutputSummary = fmt.Sprintf("%d/%d targets succeeded", outcome.SuccessCount, total)

	if outcome.FailureCount == 0 && outcome.SkippedCount == 0 {
		outcome.Status = "success"
	} else {
		outcome.Status = "error"
		outcome.ExitCode = 1
		if firstError != "" {
			outcome.Error = fmt.Sprintf("%d of %d targets failed; first failure: %s", outcome.FailureCount, total, firstError)
		} else {
			outcome.Error = fmt.Sprintf("%d of %d targets skipped", outcome.SkippedCount, total)
		}
	}

	return outcome
}

// aggregateStatus maps a single target status to the outcome status.
func aggregateStatus(status TargetStatus) string {
	if status == TargetSuccess {
		return "success"
	}
	return "error"
}

func skippedOutcome(target, reason string) *TargetOutcome {
	return &TargetOutcome{
		Target: target,
		Status: TargetSkipped,
		Error:  reason,
	}
}

func boolToCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
