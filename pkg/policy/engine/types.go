package engine

import (
	"flowgate-hq/flowgate/pkg/action"
)

// Effect is the outcome a matched rule produces.
type Effect string

const (
	// EffectAllow lets the action proceed to execution.
	EffectAllow Effect = "allow"

	// EffectRequireConfirm halts the action until a human confirms it.
	EffectRequireConfirm Effect = "require_confirm"

	// EffectDeny rejects the action outright.
	EffectDeny Effect = "deny"
)

// Valid reports whether the effect is one of the known values.
func (e Effect) Valid() bool {
	switch e {
	case EffectAllow, EffectRequireConfirm, EffectDeny:
		return true
	}
	return false
}

// Op is a clause comparison operator.
type Op string

const (
	OpEqual        Op = "eq"
	OpNotEqual     Op = "ne"
	OpIn           Op = "in"
	OpNotIn        Op = "not_in"
	OpGreaterThan  Op = "gt"
	OpGreaterEqual Op = "gte"
	OpLessThan     Op = "lt"
	OpLessEqual    Op = "lte"
)

// Valid reports whether the operator is one of the known values.
func (o Op) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpIn, OpNotIn,
		OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		return true
	}
	return false
}

// Well-known condition fields. Any other field name resolves against the
// request's tags via the "tags." prefix.
const (
	FieldEnv         = "env"
	FieldTier        = "tier"
	FieldTargetCount = "target_count"

	tagFieldPrefix = "tags."
)

// Clause is a single field comparison. A condition is the conjunction of
// its clauses. Rules stay data, not code: equality, membership, and
// numeric comparison are the whole clause vocabulary.
type Clause struct {
	// Field names the context value under test: env, tier,
	// target_count, or tags.<key>.
	Field string `yaml:"field" json:"field"`

	// Op is the comparison operator.
	Op Op `yaml:"op" json:"op"`

	// Value is the expected value for equality and numeric operators.
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	// Values is the expected set for membership operators.
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`
}

// Condition is a conjunction of clauses; every clause must hold for the
// condition to match. An empty condition matches everything.
type Condition struct {
	Clauses []Clause `yaml:"clauses" json:"clauses"`
}

// Rule is one ordered policy entry. Rules are evaluated in declaration
// order and the first match wins; deny-before-allow ordering is the rule
// author's responsibility, not the engine's.
type Rule struct {
	// Name identifies the rule in decisions and audit records.
	Name string `yaml:"name" json:"name"`

	// Condition gates the rule.
	Condition Condition `yaml:"condition" json:"condition"`

	// Effect is applied when the condition matches.
	Effect Effect `yaml:"effect" json:"effect"`

	// Message is the human-readable rationale surfaced to the caller.
	Message string `yaml:"message" json:"message"`
}

// DefaultRuleName marks decisions produced by the safe-by-default policy
// rather than an explicit rule.
const DefaultRuleName = "default"

// Decision is the evaluator's verdict. Produced fresh per request,
// never mutated.
type Decision struct {
	// Effect is the verdict: allow, require_confirm, or deny.
	Effect Effect `json:"effect"`

	// Rule names the rule that triggered, or "default".
	Rule string `json:"rule"`

	// Message is the triggering rule's rationale.
	Message string `json:"message"`

	// Tier is the classified risk tier the decision was made against.
	Tier action.Tier `json:"tier"`

	// RiskLevel is the derived caller-facing impact level.
	RiskLevel action.RiskLevel `json:"risk_level"`
}
