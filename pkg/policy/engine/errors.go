package engine

import "fmt"

// RuleError reports a malformed rule encountered during validation or
// evaluation.
type RuleError struct {
	Rule  string
	Cause error
}

// Error returns the error message.
func (e *RuleError) Error() string {
	return fmt.Sprintf("policy rule %q: %v", e.Rule, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RuleError) Unwrap() error {
	return e.Cause
}
