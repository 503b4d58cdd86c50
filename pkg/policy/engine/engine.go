// Package engine evaluates a classified action against an ordered rule
// set and produces a decision. Evaluation is a pure function of its
// inputs: first matching rule wins, and unmatched write or destructive
// actions fall back to require_confirm (safe by default).
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"flowgate-hq/flowgate/pkg/action"
)

// evalContext is the flat view of a request a condition is tested
// against.
type evalContext struct {
	env         action.Environment
	tier        action.Tier
	targetCount int
	tags        map[string]string
}

// Evaluate matches the classified action against rules in declaration
// order. Evaluation short-circuits on the first rule whose condition
// holds fully, which makes rule order semantically significant; the rule
// sequence must be preserved exactly as supplied. A clause referencing a
// malformed rule yields an error rather than a silent non-match.
func Evaluate(req *action.Request, tier action.Tier, rules []Rule) (*Decision, error) {
	ctx := &evalContext{
		env:         req.Env,
		tier:        tier,
		targetCount: req.TargetCount(),
		tags:        req.Tags,
	}

	for _, rule := range rules {
		matched, err := matchCondition(rule.Condition, ctx)
		if err != nil {
			return nil, &RuleError{Rule: rule.Name, Cause: err}
		}
		if matched {
			return &Decision{
				Effect:    rule.Effect,
				Rule:      rule.Name,
				Message:   rule.Message,
				Tier:      tier,
				RiskLevel: action.Risk(tier, req.Env),
			}, nil
		}
	}

	return defaultDecision(req, tier), nil
}

// defaultDecision applies the safe-by-default policy when no rule
// matches: read actions are allowed, write and destructive actions
// require confirmation.
func defaultDecision(req *action.Request, tier action.Tier) *Decision {
	effect := EffectAllow
	message := "no policy matched; read action allowed"
	if tier == action.TierWrite || tier == action.TierDestructive {
		effect = EffectRequireConfirm
		message = fmt.Sprintf("no policy matched; %s action requires confirmation", tier)
	}
	return &Decision{
		Effect:    effect,
		Rule:      DefaultRuleName,
		Message:   message,
		Tier:      tier,
		RiskLevel: action.Risk(tier, req.Env),
	}
}

// matchCondition tests a conjunction of clauses. All clauses must hold.
func matchCondition(cond Condition, ctx *evalContext) (bool, error) {
	for _, clause := range cond.Clauses {
		matched, err := matchClause(clause, ctx)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// matchClause dispatches one clause by operator family.
func matchClause(clause Clause, ctx *evalContext) (bool, error) {
	value, ok := resolveField(clause.Field, ctx)
	if !ok {
		// Absent tag fields never match; they are not an error because
		// tags are caller-supplied and optional.
		return false, nil
	}

	switch clause.Op {
	case OpEqual:
		return valueEquals(value, clause.Value), nil

	case OpNotEqual:
		return !valueEquals(value, clause.Value), nil

	case OpIn:
		return memberOf(value, clause.Values), nil

	case OpNotIn:
		return !memberOf(value, clause.Values), nil

	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		return compareNumeric(clause.Op, value, clause.Value)

	default:
		return false, fmt.Errorf("unknown operator: %q", clause.Op)
	}
}

// resolveField extracts the context value a clause refers to. The second
// return is false only for absent tag keys.
func resolveField(field string, ctx *evalContext) (any, bool) {
	switch field {
	case FieldEnv:
		return string(ctx.env), true
	case FieldTier:
		return string(ctx.tier), true
	case FieldTargetCount:
		return ctx.targetCount, true
	}

	if key, ok := strings.CutPrefix(field, tagFieldPrefix); ok {
		v, present := ctx.tags[key]
		return v, present
	}

	// Bare field names fall through to tags for the original config
	// shape where conditions referenced tag keys directly.
	v, present := ctx.tags[field]
	return v, present
}

// valueEquals compares a context value with an expected value, bridging
// YAML's tendency to decode numbers as int or float64.
func valueEquals(actual, expected any) bool {
	if an, aok := toFloat(actual); aok {
		if en, eok := toFloat(expected); eok {
			return an == en
		}
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

// memberOf tests set membership against the clause's string set.
func memberOf(actual any, set []string) bool {
	needle := fmt.Sprintf("%v", actual)
	for _, s := range set {
		if s == needle {
			return true
		}
	}
	return false
}

// compareNumeric evaluates the numeric comparison operators.
func compareNumeric(op Op, actual, expected any) (bool, error) {
	an, ok := toFloat(actual)
	if !ok {
		return false, fmt.Errorf("field value %v is not numeric", actual)
	}
	en, ok := toFloat(expected)
	if !ok {
		return false, fmt.Errorf("expected value %v is not numeric", expected)
	}

	switch op {
	case OpGreaterThan:
		return an > en, nil
	case OpGreaterEqual:
		return an >= en, nil
	case OpLessThan:
		return an < en, nil
	case OpLessEqual:
		return an <= en, nil
	default:
		return false, fmt.Errorf("operator %q is not numeric", op)
	}
}

// toFloat widens the numeric types YAML and JSON decoding produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ValidateRules checks structural well-formedness of an ordered rule
// set: known effects and operators, named rules, and operator/value
// agreement. Nothing about rule semantics is validated; ordering and
// deny-before-allow conventions belong to the rule author.
func ValidateRules(rules []Rule) error {
	for i, rule := range rules {
		if rule.Name == "" {
			return &RuleError{Rule: fmt.Sprintf("#%d", i), Cause: fmt.Errorf("rule name is required")}
		}
		if !rule.Effect.Valid() {
			return &RuleError{Rule: rule.Name, Cause: fmt.Errorf("unknown effect %q", rule.Effect)}
		}
		for _, clause := range rule.Condition.Clauses {
			if clause.Field == "" {
				return &RuleError{Rule: rule.Name, Cause: fmt.Errorf("clause field is required")}
			}
			if !clause.Op.Valid() {
				return &RuleError{Rule: rule.Name, Cause: fmt.Errorf("unknown operator %q", clause.Op)}
			}
			switch clause.Op {
			case OpIn, OpNotIn:
				if len(clause.Values) == 0 {
					return &RuleError{Rule: rule.Name, Cause: fmt.Errorf("operator %q requires a value set", clause.Op)}
				}
			case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
				if _, ok := toFloat(clause.Value); !ok {
					return &RuleError{Rule: rule.Name, Cause: fmt.Errorf("operator %q requires a numeric value", clause.Op)}
				}
			default:
				if clause.Value == nil {
					return &RuleError{Rule: rule.Name, Cause: fmt.Errorf("operator %q requires a value", clause.Op)}
				}
			}
		}
	}
	return nil
}
