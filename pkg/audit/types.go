package audit

import (
	"context"
	"time"
)

// Record is the audit trail entry for a single action submission. One
// record is written per terminal outcome: denied, confirmation issued,
// executed, failed, or rejected. Records are append-only and form a
// hash chain through PrevHash and RecordHash.
type Record struct {
	// Identity
	ID        string `json:"id"`         // UUID v4
	RequestID string `json:"request_id"` // From the submitting client

	// Timestamps
	ReceivedTime time.Time `json:"received_time"` // When the action was received
	DecisionTime time.Time `json:"decision_time"` // When policy was evaluated
	RecordedTime time.Time `json:"recorded_time"` // When the record was written

	// Action
	ActionKind  string            `json:"action_kind"`
	Environment string            `json:"environment"`
	Targets     []string          `json:"targets"`
	Params      map[string]any    `json:"params"` // Redacted before write
	Tags        map[string]string `json:"tags,omitempty"`
	Fingerprint string            `json:"fingerprint"` // SHA-256 of the canonical action

	// Classification
	Tier      string `json:"tier"`
	RiskLevel string `json:"risk_level"`

	// Policy decision
	Decision    string `json:"decision"`     // "allow", "require_confirm", "deny"
	MatchedRule string `json:"matched_rule"` // Rule name, "default" if none matched
	RuleMessage string `json:"rule_message,omitempty"`

	// Confirmation, present only when a token was involved
	TokenID     string     `json:"token_id,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`

	// Outcome
	Outcome       string          `json:"outcome"` // "denied", "awaiting_confirmation", "executed", "partial_failure", "failed", "canceled", "rejected"
	TargetResults []*TargetResult `json:"target_results,omitempty"`
	DurationMS    int64           `json:"duration_ms"`

	// Error info
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`

	// Submitter
	Actor     string `json:"actor,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	// Hash chain
	PrevHash   string `json:"prev_hash"`   // RecordHash of the previous record, "" for the first
	RecordHash string `json:"record_hash"` // SHA-256 over this record's canonical content
}

// TargetResult captures the per-target outcome of a batch execution.
type TargetResult struct {
	Target     string `json:"target"`
	Status     string `json:"status"` // "success", "failed", "skipped", "timeout"
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Query defines filter parameters for reading back audit records.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	RequestID   string `json:"request_id,omitempty"`
	ActionKind  string `json:"action_kind,omitempty"`
	Environment string `json:"environment,omitempty"`
	Tier        string `json:"tier,omitempty"`
	Decision    string `json:"decision,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	Actor       string `json:"actor,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Storage defines the interface for audit storage backends. There is no
// delete or update operation: the log is append-only by construction.
// Implementations must be thread-safe.
type Storage interface {
	// Append persists an audit record.
	Append(ctx context.Context, record *Record) error

	// Query retrieves audit records matching the query filters,
	// newest first. Returns an empty slice if no records match.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// LastHash returns the RecordHash of the most recently appended
	// record, or "" when the log is empty. Used to seed the hash chain
	// on startup.
	LastHash(ctx context.Context) (string, error)

	// Close releases any resources held by the storage backend.
	Close() error
}
