package engine

import (
	"errors"
	"testing"

	"flowgate-hq/flowgate/pkg/action"
)

func request(env action.Environment, targets []string, tags map[string]string) *action.Request {
	return &action.Request{
		RequestID: "req-1",
		Kind:      "remote-command",
		Env:       env,
		Params:    map[string]any{"command": "placeholder"},
		Targets:   targets,
		Tags:      tags,
	}
}

// prodWriteProtection requires confirmation for write actions in prod.
func prodWriteProtection() Rule {
	return Rule{
		Name: "prod_write_protection",
		Condition: Condition{Clauses: []Clause{
			{Field: FieldEnv, Op: OpEqual, Value: "prod"},
			{Field: FieldTier, Op: OpEqual, Value: "write"},
		}},
		Effect:  EffectRequireConfirm,
		Message: "write operations in prod require confirmation",
	}
}

// destructiveDeny blocks destructive actions in prod.
func destructiveDeny() Rule {
	return Rule{
		Name: "destructive_deny",
		Condition: Condition{Clauses: []Clause{
			{Field: FieldEnv, Op: OpEqual, Value: "prod"},
			{Field: FieldTier, Op: OpEqual, Value: "destructive"},
		}},
		Effect:  EffectDeny,
		Message: "destructive operations are forbidden in prod",
	}
}

// TestEvaluate_FirstMatchWins verifies short-circuit, order-sensitive
// matching.
func TestEvaluate_FirstMatchWins(t *testing.T) {
	req := request(action.EnvProd, nil, nil)

	// Deny placed before a matching allow: deny wins.
	rules := []Rule{
		destructiveDeny(),
		{
			Name:      "allow_everything",
			Condition: Condition{},
			Effect:    EffectAllow,
			Message:   "catch-all",
		},
	}

	dec, err := Evaluate(req, action.TierDestructive, rules)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Effect != EffectDeny || dec.Rule != "destructive_deny" {
		t.Errorf("Decision = %s/%s, want deny/destructive_deny", dec.Effect, dec.Rule)
	}

	// Same rules reversed: the catch-all allow matches first.
	reversed := []Rule{rules[1], rules[0]}
	dec, err = Evaluate(req, action.TierDestructive, reversed)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Effect != EffectAllow || dec.Rule != "allow_everything" {
		t.Errorf("Decision = %s/%s, want allow/allow_everything", dec.Effect, dec.Rule)
	}
}

// TestEvaluate_DenyRegardlessOfLaterAllows pins first-match ordering: a
// destructive action in prod under a rule set with destructive_deny is
// always denied no matter what allow rules follow it.
func TestEvaluate_DenyRegardlessOfLaterAllows(t *testing.T) {
	req := request(action.EnvProd, nil, nil)

	laterAllows := [][]Rule{
		{destructiveDeny()},
		{destructiveDeny(), {Name: "allow_prod", Condition: Condition{Clauses: []Clause{{Field: FieldEnv, Op: OpEqual, Value: "prod"}}}, Effect: EffectAllow}},
		{prodWriteProtection(), destructiveDeny(), {Name: "allow_all", Condition: Condition{}, Effect: EffectAllow}},
	}

	for i, rules := range laterAllows {
		dec, err := Evaluate(req, action.TierDestructive, rules)
		if err != nil {
			t.Fatalf("rule set %d: error = %v", i, err)
		}
		if dec.Effect != EffectDeny {
			t.Errorf("rule set %d: effect = %s, want deny", i, dec.Effect)
		}
	}
}

// TestEvaluate_RmScenarios covers the two canonical classifier+policy
// scenarios for "rm -rf /tmp/cache" (write) and "rm -rf /" (destructive).
func TestEvaluate_RmScenarios(t *testing.T) {
	rules := []Rule{prodWriteProtection(), destructiveDeny()}
	req := request(action.EnvProd, []string{"prod-api-3"}, nil)

	// Write-tier action matches prod_write_protection.
	dec, err := Evaluate(req, action.TierWrite, rules)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Effect != EffectRequireConfirm || dec.Rule != "prod_write_protection" {
		t.Errorf("Decision = %s/%s, want require_confirm/prod_write_protection", dec.Effect, dec.Rule)
	}
	if dec.RiskLevel != action.RiskHigh {
		t.Errorf("RiskLevel = %s, want high", dec.RiskLevel)
	}

	// Destructive-tier action matches destructive_deny.
	dec, err = Evaluate(req, action.TierDestructive, rules)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Effect != EffectDeny || dec.Rule != "destructive_deny" {
		t.Errorf("Decision = %s/%s, want deny/destructive_deny", dec.Effect, dec.Rule)
	}
}

// TestEvaluate_Defaults verifies the safe-by-default policy per tier.
func TestEvaluate_Defaults(t *testing.T) {
	tests := []struct {
		tier action.Tier
		want Effect
	}{
		{action.TierRead, EffectAllow},
		{action.TierWrite, EffectRequireConfirm},
		{action.TierDestructive, EffectRequireConfirm},
	}

	for _, tt := range tests {
		dec, err := Evaluate(request(action.EnvDev, nil, nil), tt.tier, nil)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if dec.Effect != tt.want {
			t.Errorf("tier %s: effect = %s, want %s", tt.tier, dec.Effect, tt.want)
		}
		if dec.Rule != DefaultRuleName {
			t.Errorf("tier %s: rule = %q, want %q", tt.tier, dec.Rule, DefaultRuleName)
		}
	}
}

// TestEvaluate_BatchThreshold pins the target_count > 5 boundary: six
// targets trigger the rule, five do not.
func TestEvaluate_BatchThreshold(t *testing.T) {
	rules := []Rule{{
		Name: "batch_operation_limit",
		Condition: Condition{Clauses: []Clause{
			{Field: FieldTargetCount, Op: OpGreaterThan, Value: 5},
		}},
		Effect:  EffectRequireConfirm,
		Message: "large batch operations require confirmation",
	}}

	six := []string{"h1", "h2", "h3", "h4", "h5", "h6"}
	dec, err := Evaluate(request(action.EnvDev, six, nil), action.TierRead, rules)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Effect != EffectRequireConfirm || dec.Rule != "batch_operation_limit" {
		t.Errorf("6 targets: Decision = %s/%s, want require_confirm/batch_operation_limit", dec.Effect, dec.Rule)
	}

	five := six[:5]
	dec, err = Evaluate(request(action.EnvDev, five, nil), action.TierRead, rules)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Rule == "batch_operation_limit" {
		t.Errorf("5 targets must not trigger the >5 rule, got %s", dec.Rule)
	}
}

// TestEvaluate_ClauseOperators exercises membership and comparison
// clauses against env, tier, and tags.
func TestEvaluate_ClauseOperators(t *testing.T) {
	tests := []struct {
		name      string
		clause    Clause
		req       *action.Request
		tier      action.Tier
		wantMatch bool
	}{
		{
			name:      "membership match",
			clause:    Clause{Field: FieldEnv, Op: OpIn, Values: []string{"staging", "prod"}},
			req:       request(action.EnvStaging, nil, nil),
			wantMatch: true,
		},
		{
			name:      "membership miss",
			clause:    Clause{Field: FieldEnv, Op: OpIn, Values: []string{"staging", "prod"}},
			req:       request(action.EnvDev, nil, nil),
			wantMatch: false,
		},
		{
			name:      "negated membership",
			clause:    Clause{Field: FieldEnv, Op: OpNotIn, Values: []string{"dev"}},
			req:       request(action.EnvProd, nil, nil),
			wantMatch: true,
		},
		{
			name:      "not equal",
			clause:    Clause{Field: FieldTier, Op: OpNotEqual, Value: "read"},
			req:       request(action.EnvDev, nil, nil),
			tier:      action.TierWrite,
			wantMatch: true,
		},
		{
			name:      "tag equality",
			clause:    Clause{Field: "tags.team", Op: OpEqual, Value: "sre"},
			req:       request(action.EnvDev, nil, map[string]string{"team": "sre"}),
			wantMatch: true,
		},
		{
			name:      "bare tag field",
			clause:    Clause{Field: "team", Op: OpEqual, Value: "sre"},
			req:       request(action.EnvDev, nil, map[string]string{"team": "sre"}),
			wantMatch: true,
		},
		{
			name:      "absent tag never matches",
			clause:    Clause{Field: "tags.team", Op: OpEqual, Value: "sre"},
			req:       request(action.EnvDev, nil, nil),
			wantMatch: false,
		},
		{
			name:      "target_count gte",
			clause:    Clause{Field: FieldTargetCount, Op: OpGreaterEqual, Value: 2},
			req:       request(action.EnvDev, []string{"a", "b"}, nil),
			wantMatch: true,
		},
		{
			name:      "target_count lt",
			clause:    Clause{Field: FieldTargetCount, Op: OpLessThan, Value: 2},
			req:       request(action.EnvDev, []string{"a", "b"}, nil),
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := tt.tier
			if tier == "" {
				tier = action.TierRead
			}
			rules := []Rule{{
				Name:      "candidate",
				Condition: Condition{Clauses: []Clause{tt.clause}},
				Effect:    EffectDeny,
				Message:   "candidate",
			}}

			dec, err := Evaluate(tt.req, tier, rules)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			matched := dec.Rule == "candidate"
			if matched != tt.wantMatch {
				t.Errorf("clause matched = %v, want %v", matched, tt.wantMatch)
			}
		})
	}
}

// TestEvaluate_Conjunction requires every clause in a condition to hold.
func TestEvaluate_Conjunction(t *testing.T) {
	rules := []Rule{{
		Name: "prod_batch",
		Condition: Condition{Clauses: []Clause{
			{Field: FieldEnv, Op: OpEqual, Value: "prod"},
			{Field: FieldTargetCount, Op: OpGreaterThan, Value: 3},
		}},
		Effect: EffectDeny,
	}}

	// Env matches but count does not.
	dec, err := Evaluate(request(action.EnvProd, []string{"a"}, nil), action.TierRead, rules)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Rule == "prod_batch" {
		t.Error("condition with one failing clause must not match")
	}

	// Both clauses hold.
	dec, err = Evaluate(request(action.EnvProd, []string{"a", "b", "c", "d"}, nil), action.TierRead, rules)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Rule != "prod_batch" {
		t.Errorf("rule = %q, want prod_batch", dec.Rule)
	}
}

// TestEvaluate_MalformedClause surfaces a RuleError instead of treating
// a broken rule as a non-match.
func TestEvaluate_MalformedClause(t *testing.T) {
	rules := []Rule{{
		Name: "broken",
		Condition: Condition{Clauses: []Clause{
			{Field: FieldEnv, Op: OpGreaterThan, Value: 5}, // env is not numeric
		}},
		Effect: EffectDeny,
	}}

	_, err := Evaluate(request(action.EnvProd, nil, nil), action.TierRead, rules)
	var rerr *RuleError
	if !errors.As(err, &rerr) {
		t.Fatalf("Evaluate() error = %v, want *RuleError", err)
	}
	if rerr.Rule != "broken" {
		t.Errorf("RuleError.Rule = %q, want broken", rerr.Rule)
	}
}

// TestValidateRules covers the structural well-formedness check.
func TestValidateRules(t *testing.T) {
	tests := []struct {
		name    string
		rules   []Rule
		wantErr bool
	}{
		{
			name:  "valid set",
			rules: []Rule{prodWriteProtection(), destructiveDeny()},
		},
		{
			name:    "missing name",
			rules:   []Rule{{Effect: EffectAllow}},
			wantErr: true,
		},
		{
			name:    "unknown effect",
			rules:   []Rule{{Name: "r", Effect: "maybe"}},
			wantErr: true,
		},
		{
			name: "unknown operator",
			rules: []Rule{{Name: "r", Effect: EffectAllow, Condition: Condition{Clauses: []Clause{
				{Field: FieldEnv, Op: "like", Value: "prod"},
			}}}},
			wantErr: true,
		},
		{
			name: "in without values",
			rules: []Rule{{Name: "r", Effect: EffectAllow, Condition: Condition{Clauses: []Clause{
				{Field: FieldEnv, Op: OpIn},
			}}}},
			wantErr: true,
		},
		{
			name: "numeric op with non-numeric value",
			rules: []Rule{{Name: "r", Effect: EffectAllow, Condition: Condition{Clauses: []Clause{
				{Field: FieldTargetCount, Op: OpGreaterThan, Value: "many"},
			}}}},
			wantErr: true,
		},
		{
			name: "numeric value as string number is accepted",
			rules: []Rule{{Name: "r", Effect: EffectAllow, Condition: Condition{Clauses: []Clause{
				{Field: FieldTargetCount, Op: OpGreaterThan, Value: "5"},
			}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRules(tt.rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRules() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
