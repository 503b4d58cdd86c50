package dispatch

import (
	"time"

	"flowgate-hq/flowgate/pkg/action"
)

// TargetStatus is the terminal status of one target's execution.
type TargetStatus string

const (
	// TargetSuccess means the backend completed without error.
	TargetSuccess TargetStatus = "success"
	// TargetFailed means the backend returned an error.
	TargetFailed TargetStatus = "failed"
	// TargetTimeout means the per-target timeout fired.
	TargetTimeout TargetStatus = "timeout"
	// TargetSkipped means the target was never started, either because
	// an earlier failure short-circuited the batch or the request was
	// cancelled.
	TargetSkipped TargetStatus = "skipped"
)

// PendingConfirmation is returned when policy requires a human
// confirmation before execution. No execution has occurred; the caller
// must resubmit the same action with the confirm token.
type PendingConfirmation struct {
	Status          string         `json:"status"` // always "pending_confirm"
	PolicyTriggered string         `json:"policy_triggered"`
	Message         string         `json:"message"`
	RiskLevel       string         `json:"risk_level"`
	Preview         *ActionPreview `json:"preview"`
	ConfirmToken    string         `json:"confirm_token"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// ActionPreview summarizes what will run once confirmed, so the human
// approving it sees the blast radius before handing back the token.
type ActionPreview struct {
	ActionKind  string   `json:"action_kind"`
	Environment string   `json:"env"`
	Command     string   `json:"command,omitempty"`
	Targets     []string `json:"targets,omitempty"`
	TargetCount int      `json:"target_count"`
	RiskTier    string   `json:"risk_tier"`
}

// Denial is returned when policy denies the action or the confirmation
// handshake fails. ErrorType distinguishes a policy deny from each
// token failure so the caller knows whether to re-request confirmation
// or investigate tampering.
type Denial struct {
	Status          string `json:"status"` // always "error"
	ErrorType       string `json:"error_type"`
	PolicyTriggered string `json:"policy_triggered,omitempty"`
	Message         string `json:"message"`
}

// ErrorType values carried by Denial.
const (
	ErrTypePolicyDenied        = "PolicyDenied"
	ErrTypeTokenNotFound       = "TokenNotFound"
	ErrTypeTokenExpired        = "TokenExpired"
	ErrTypeTokenConsumed       = "TokenAlreadyConsumed"
	ErrTypeFingerprintMismatch = "FingerprintMismatch"
	ErrTypeBackendTimeout      = "BackendTimeout"
	ErrTypeBackendError        = "BackendError"
)

// TargetOutcome is the result of one target's execution.
type TargetOutcome struct {
	Target        string       `json:"target"`
	Status        TargetStatus `json:"status"`
	ExitCode      int          `json:"exit_code"`
	OutputSummary string       `json:"output_summary,omitempty"`
	Error         string       `json:"error,omitempty"`
	DurationSec   float64      `json:"duration_sec"`
}

// ExecutionOutcome is the aggregate result of an allowed or confirmed
// execution. For batch actions PerTarget carries the per-target detail;
// Status is "success" only when every started target succeeded.
type ExecutionOutcome struct {
	Status        string           `json:"status"` // "success" or "error"
	ExitCode      int              `json:"exit_code"`
	OutputSummary string           `json:"output_summary"`
	Error         string           `json:"error,omitempty"`
	DurationSec   float64          `json:"duration_sec"`
	PerTarget     []*TargetOutcome `json:"per_target,omitempty"`
	SuccessCount  int              `json:"success_count"`
	FailureCount  int              `json:"failure_count"`
	SkippedCount  int              `json:"skipped_count,omitempty"`
}

// Result is the dispatcher's terminal answer for one submission.
// Exactly one field is set.
type Result struct {
	Pending *PendingConfirmation `json:"pending,omitempty"`
	Denied  *Denial              `json:"denied,omitempty"`
	Outcome *ExecutionOutcome    `json:"outcome,omitempty"`
}

// preview builds the action summary shown to the confirming human.
func preview(req *action.Request, tier action.Tier) *ActionPreview {
	return &ActionPreview{
		ActionKind:  req.Kind,
		Environment: string(req.Env),
		Command:     req.Command(),
		Targets:     req.Targets,
		TargetCount: req.TargetCount(),
		RiskTier:    string(tier),
	}
}
