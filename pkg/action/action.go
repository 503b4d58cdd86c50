// Package action defines the unit of work proposed for execution and the
// derivations shared by the classifier, policy engine, dispatcher, and
// audit trail: structural validation, the action fingerprint, and the
// risk-level mapping.
package action

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Environment identifies the deployment environment an action targets.
type Environment string

const (
	// EnvDev is the development environment.
	EnvDev Environment = "dev"

	// EnvStaging is the staging environment.
	EnvStaging Environment = "staging"

	// EnvProd is the production environment.
	EnvProd Environment = "prod"
)

// Valid reports whether the environment is one of the known values.
func (e Environment) Valid() bool {
	switch e {
	case EnvDev, EnvStaging, EnvProd:
		return true
	}
	return false
}

// Tier is the coarse risk classification of an action.
type Tier string

const (
	// TierRead covers introspection with no side effects.
	TierRead Tier = "read"

	// TierWrite covers reversible state changes.
	TierWrite Tier = "write"

	// TierDestructive covers irreversible operations.
	TierDestructive Tier = "destructive"
)

// RiskLevel is the caller-facing impact level derived from tier and
// environment.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Request is an action proposed for execution. It is immutable once
// constructed; resubmission with a confirm token is a new Request that
// fingerprints to the same value.
type Request struct {
	// RequestID uniquely identifies this submission.
	RequestID string `json:"request_id"`

	// Kind names the backend operation (e.g., "remote-command",
	// "batch-remote-command").
	Kind string `json:"action_kind"`

	// Env is the environment the action targets.
	Env Environment `json:"env"`

	// Params holds the operation arguments (target identifier, command
	// text, flags).
	Params map[string]any `json:"params"`

	// Targets lists the hosts a batch action addresses. Single-target
	// actions may leave this empty and name the target in Params.
	Targets []string `json:"targets,omitempty"`

	// ConfirmToken carries a previously issued confirm token on
	// resubmission.
	ConfirmToken string `json:"confirm_token,omitempty"`

	// TimeoutSec is the per-target execution timeout. Zero means the
	// engine default applies.
	TimeoutSec int `json:"timeout_sec,omitempty"`

	// ContinueOnError overrides the configured batch failure behavior
	// for this action. Nil means the engine default applies.
	ContinueOnError *bool `json:"continue_on_error,omitempty"`

	// Tags carries arbitrary caller metadata visible to policy rules.
	Tags map[string]string `json:"tags,omitempty"`

	// ReceivedAt is when the engine accepted the request.
	ReceivedAt time.Time `json:"received_at"`
}

// NewRequest builds a Request with a fresh request id and timestamp.
func NewRequest(kind string, env Environment, params map[string]any) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Kind:       kind,
		Env:        env,
		Params:     params,
		ReceivedAt: time.Now(),
	}
}

// ValidationError reports a structurally malformed request. It is
// distinct from policy errors: validation failures happen before
// classification and carry no policy decision.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid action request: field %q: %s", e.Field, e.Message)
}

// Validate performs the structural fail-fast check. It never inspects
// parameter semantics; that is the classifier's job.
func (r *Request) Validate() error {
	if r == nil {
		return &ValidationError{Field: "request", Message: "nil request"}
	}
	if r.RequestID == "" {
		return &ValidationError{Field: "request_id", Message: "required"}
	}
	if r.Kind == "" {
		return &ValidationError{Field: "action_kind", Message: "required"}
	}
	if !r.Env.Valid() {
		return &ValidationError{Field: "env", Message: fmt.Sprintf("unknown environment %q", r.Env)}
	}
	if r.Params == nil {
		return &ValidationError{Field: "params", Message: "required"}
	}
	if r.TimeoutSec < 0 {
		return &ValidationError{Field: "timeout_sec", Message: "must be non-negative"}
	}
	return nil
}

// TargetCount returns the number of targets the action addresses.
// Single-target actions count as one.
func (r *Request) TargetCount() int {
	if len(r.Targets) > 0 {
		return len(r.Targets)
	}
	return 1
}

// fingerprintPayload is the canonical identity of an action. Request id,
// token, and timestamps are deliberately excluded so resubmission hashes
// to the same value.
type fingerprintPayload struct {
	Kind    string         `json:"kind"`
	Env     Environment    `json:"env"`
	Params  map[string]any `json:"params"`
	Targets []string       `json:"targets"`
}

// Fingerprint derives the stable identity hash binding confirm tokens to
// the exact action they were issued for. Encoding uses JSON, which sorts
// map keys, so equal actions always produce equal fingerprints.
func (r *Request) Fingerprint() string {
	targets := make([]string, len(r.Targets))
	copy(targets, r.Targets)
	sort.Strings(targets)

	payload, err := json.Marshal(fingerprintPayload{
		Kind:    r.Kind,
		Env:     r.Env,
		Params:  r.Params,
		Targets: targets,
	})
	if err != nil {
		// Params came from JSON or YAML; marshaling back cannot fail for
		// those shapes. Fall back to the kind so a fingerprint always exists.
		payload = []byte(r.Kind)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Command returns the primary command text parameter, if present.
func (r *Request) Command() string {
	if cmd, ok := r.Params["command"].(string); ok {
		return cmd
	}
	return ""
}

// Risk maps a tier and environment to the caller-facing risk level.
// Destructive actions in prod are critical; write actions in prod are
// high; everything read-only is low.
func Risk(tier Tier, env Environment) RiskLevel {
	switch tier {
	case TierDestructive:
		if env == EnvProd {
			return RiskCritical
		}
		return RiskHigh
	case TierWrite:
		if env == EnvProd {
			return RiskHigh
		}
		return RiskMedium
	default:
		return RiskLow
	}
}
