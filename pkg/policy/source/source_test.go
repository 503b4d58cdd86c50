package source

import (
	"os"
	"path/filepath"
	"testing"

	"flowgate-hq/flowgate/pkg/action"
	"flowgate-hq/flowgate/pkg/policy/engine"
)

const policyYAML = `
policies:
  - name: destructive_deny
    condition:
      env: prod
      action_type: destructive
    effect: deny
    message: "destructive operations are forbidden in prod"

  - name: prod_write_protection
    condition:
      env: prod
      action_type: write
    effect: require_confirm
    message: "write operations in prod require confirmation"

  - name: batch_operation_limit
    condition:
      target_count: ">5"
    effect: require_confirm
    message: "large batch operations require confirmation"

  - name: sre_override
    condition:
      tags:
        team: sre
    effect: allow
    message: "sre actions pre-approved in dev"
`

// TestParseRules_OrderPreserved verifies declaration order survives
// parsing, since first-match semantics depend on it.
func TestParseRules_OrderPreserved(t *testing.T) {
	rules, err := ParseRules([]byte(policyYAML))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}

	wantOrder := []string{"destructive_deny", "prod_write_protection", "batch_operation_limit", "sre_override"}
	if len(rules) != len(wantOrder) {
		t.Fatalf("got %d rules, want %d", len(rules), len(wantOrder))
	}
	for i, name := range wantOrder {
		if rules[i].Name != name {
			t.Errorf("rules[%d] = %q, want %q", i, rules[i].Name, name)
		}
	}
}

// TestParseRules_ConditionMapping checks the YAML condition shorthand
// maps onto engine clauses with the right operators.
func TestParseRules_ConditionMapping(t *testing.T) {
	rules, err := ParseRules([]byte(policyYAML))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}

	// destructive_deny: env eq + tier eq.
	deny := rules[0]
	if len(deny.Condition.Clauses) != 2 {
		t.Fatalf("destructive_deny clauses = %d, want 2", len(deny.Condition.Clauses))
	}
	if deny.Effect != engine.EffectDeny {
		t.Errorf("destructive_deny effect = %s", deny.Effect)
	}

	// batch_operation_limit: target_count > 5.
	batch := rules[2]
	clause := batch.Condition.Clauses[0]
	if clause.Field != engine.FieldTargetCount || clause.Op != engine.OpGreaterThan || clause.Value != 5 {
		t.Errorf("batch clause = %+v, want target_count gt 5", clause)
	}

	// sre_override: tags.team eq sre.
	sre := rules[3]
	clause = sre.Condition.Clauses[0]
	if clause.Field != "tags.team" || clause.Op != engine.OpEqual || clause.Value != "sre" {
		t.Errorf("sre clause = %+v, want tags.team eq sre", clause)
	}
}

// TestParseRules_EndToEnd evaluates parsed rules to confirm behavior
// matches the authored intent.
func TestParseRules_EndToEnd(t *testing.T) {
	rules, err := ParseRules([]byte(policyYAML))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}

	req := &action.Request{
		RequestID: "req-1",
		Kind:      "batch-remote-command",
		Env:       action.EnvDev,
		Params:    map[string]any{"command": "uptime"},
		Targets:   []string{"h1", "h2", "h3", "h4", "h5", "h6"},
	}

	dec, err := engine.Evaluate(req, action.TierRead, rules)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Rule != "batch_operation_limit" || dec.Effect != engine.EffectRequireConfirm {
		t.Errorf("Decision = %s/%s, want require_confirm/batch_operation_limit", dec.Effect, dec.Rule)
	}
}

// TestParseCountCondition covers the compact comparison syntax.
func TestParseCountCondition(t *testing.T) {
	tests := []struct {
		cond    string
		wantOp  engine.Op
		wantVal int
		wantErr bool
	}{
		{cond: ">5", wantOp: engine.OpGreaterThan, wantVal: 5},
		{cond: ">=10", wantOp: engine.OpGreaterEqual, wantVal: 10},
		{cond: "<3", wantOp: engine.OpLessThan, wantVal: 3},
		{cond: "<=2", wantOp: engine.OpLessEqual, wantVal: 2},
		{cond: "==1", wantOp: engine.OpEqual, wantVal: 1},
		{cond: "4", wantOp: engine.OpEqual, wantVal: 4},
		{cond: "> 5", wantOp: engine.OpGreaterThan, wantVal: 5},
		{cond: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			clause, err := parseCountCondition(tt.cond)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCountCondition(%q) error = %v, wantErr %v", tt.cond, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if clause.Op != tt.wantOp || clause.Value != tt.wantVal {
				t.Errorf("clause = %+v, want op %s value %d", clause, tt.wantOp, tt.wantVal)
			}
		})
	}
}

// TestParseRules_Invalid rejects malformed documents.
func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "bad yaml",
			doc:  "policies: [",
		},
		{
			name: "unknown effect",
			doc: `
policies:
  - name: r1
    effect: maybe
`,
		},
		{
			name: "bad target_count",
			doc: `
policies:
  - name: r1
    condition:
      target_count: "many"
    effect: deny
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.doc)); err == nil {
				t.Error("ParseRules() should fail")
			}
		})
	}
}

// TestFileSource_Reload verifies reload swaps the rule set and a broken
// edit keeps the previous rules active.
func TestFileSource_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	if err := os.WriteFile(path, []byte(policyYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	if len(src.Rules()) != 4 {
		t.Fatalf("initial rules = %d, want 4", len(src.Rules()))
	}

	// Valid edit: rule set shrinks.
	smaller := `
policies:
  - name: allow_all
    effect: allow
    message: "open gate"
`
	if err := os.WriteFile(path, []byte(smaller), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := src.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(src.Rules()) != 1 || src.Rules()[0].Name != "allow_all" {
		t.Errorf("rules after reload = %+v", src.Rules())
	}

	// Broken edit: reload fails but previous rules survive.
	if err := os.WriteFile(path, []byte("policies: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := src.Reload(); err == nil {
		t.Fatal("Reload() of broken file should fail")
	}
	if len(src.Rules()) != 1 || src.Rules()[0].Name != "allow_all" {
		t.Errorf("previous rules not retained: %+v", src.Rules())
	}
}
