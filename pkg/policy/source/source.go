// Package source supplies ordered policy rule sets to the dispatcher.
// Rules live in a YAML document; the file loader preserves declaration
// order exactly, and an optional fsnotify watcher reloads the file on
// change, keeping the last good rule set when a reload fails.
package source

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"flowgate-hq/flowgate/pkg/policy/engine"
)

// Provider hands out the current ordered rule set. The dispatcher takes
// one snapshot per request; a reload between requests never changes an
// in-flight evaluation.
type Provider interface {
	Rules() []engine.Rule
}

// StaticProvider wraps a fixed rule set.
type StaticProvider struct {
	rules []engine.Rule
}

// NewStaticProvider builds a provider over a fixed, pre-validated set.
func NewStaticProvider(rules []engine.Rule) *StaticProvider {
	return &StaticProvider{rules: rules}
}

// Rules returns the fixed rule set.
func (p *StaticProvider) Rules() []engine.Rule {
	return p.rules
}

// ruleDoc is the YAML schema for a policy file.
//
//	policies:
//	  - name: prod_write_protection
//	    condition:
//	      env: prod
//	      action_type: write
//	    effect: require_confirm
//	    message: "write operations in prod require confirmation"
//	  - name: batch_operation_limit
//	    condition:
//	      target_count: ">5"
//	    effect: require_confirm
//	    message: "large batch operations require confirmation"
type ruleDoc struct {
	Policies []policyEntry `yaml:"policies"`
}

type policyEntry struct {
	Name      string         `yaml:"name"`
	Condition conditionEntry `yaml:"condition"`
	Effect    string         `yaml:"effect"`
	Message   string         `yaml:"message"`
}

type conditionEntry struct {
	Env         string            `yaml:"env,omitempty"`
	ActionType  string            `yaml:"action_type,omitempty"`
	TargetCount string            `yaml:"target_count,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty"`
}

// ParseRules decodes a YAML policy document into an ordered engine rule
// set and validates structural well-formedness.
func ParseRules(data []byte) ([]engine.Rule, error) {
	var doc ruleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}

	rules := make([]engine.Rule, 0, len(doc.Policies))
	for _, entry := range doc.Policies {
		rule, err := entry.toRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := engine.ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// LoadFile reads and parses a policy file.
func LoadFile(path string) ([]engine.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %q: %w", path, err)
	}
	return rules, nil
}

// toRule converts one YAML policy entry into an engine rule.
func (e policyEntry) toRule() (engine.Rule, error) {
	var clauses []engine.Clause

	if e.Condition.Env != "" {
		clauses = append(clauses, engine.Clause{
			Field: engine.FieldEnv, Op: engine.OpEqual, Value: e.Condition.Env,
		})
	}
	if e.Condition.ActionType != "" {
		clauses = append(clauses, engine.Clause{
			Field: engine.FieldTier, Op: engine.OpEqual, Value: e.Condition.ActionType,
		})
	}
	if e.Condition.TargetCount != "" {
		clause, err := parseCountCondition(e.Condition.TargetCount)
		if err != nil {
			return engine.Rule{}, fmt.Errorf("policy %q: %w", e.Name, err)
		}
		clauses = append(clauses, clause)
	}
	for key, value := range e.Condition.Tags {
		clauses = append(clauses, engine.Clause{
			Field: "tags." + key, Op: engine.OpEqual, Value: value,
		})
	}

	return engine.Rule{
		Name:      e.Name,
		Condition: engine.Condition{Clauses: clauses},
		Effect:    engine.Effect(e.Effect),
		Message:   e.Message,
	}, nil
}

// parseCountCondition parses the compact comparison syntax used for
// target counts in policy files: ">5", ">=10", "<3", "<=2", "==1", "4".
func parseCountCondition(cond string) (engine.Clause, error) {
	cond = strings.TrimSpace(cond)

	op := engine.OpEqual
	rest := cond
	switch {
	case strings.HasPrefix(cond, ">="):
		op, rest = engine.OpGreaterEqual, cond[2:]
	case strings.HasPrefix(cond, "<="):
		op, rest = engine.OpLessEqual, cond[2:]
	case strings.HasPrefix(cond, "=="):
		op, rest = engine.OpEqual, cond[2:]
	case strings.HasPrefix(cond, ">"):
		op, rest = engine.OpGreaterThan, cond[1:]
	case strings.HasPrefix(cond, "<"):
		op, rest = engine.OpLessThan, cond[1:]
	}

	threshold, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return engine.Clause{}, fmt.Errorf("invalid target_count condition %q", cond)
	}

	return engine.Clause{Field: engine.FieldTargetCount, Op: op, Value: threshold}, nil
}

// FileSource is a reloadable Provider backed by a policy file.
type FileSource struct {
	path string

	mu    sync.RWMutex
	rules []engine.Rule
}

// NewFileSource loads the policy file and returns a provider over it.
func NewFileSource(path string) (*FileSource, error) {
	rules, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: path, rules: rules}, nil
}

// Rules returns the current rule set snapshot.
func (s *FileSource) Rules() []engine.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// Reload re-reads the policy file. On failure the previous rule set
// stays active and the error is returned for logging.
func (s *FileSource) Reload() error {
	rules, err := LoadFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	return nil
}

// Path returns the backing file path.
func (s *FileSource) Path() string {
	return s.path
}
