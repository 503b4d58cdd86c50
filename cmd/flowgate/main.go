// Flowgate is a policy-gated execution engine for operational actions.
//
// It sits between action proposals and their execution, providing:
//   - Risk classification (read, write, destructive)
//   - Ordered policy rules with allow / require_confirm / deny effects
//   - A single-use confirmation handshake for risky actions
//   - Bounded-concurrency fan-out for batch actions
//   - A tamper-evident, hash-chained audit trail
//
// Usage:
//
//	# Start the gateway with default configuration
//	flowgate run
//
//	# Start with a custom configuration file
//	flowgate run --config /etc/flowgate/config.yaml
//
//	# Show version information
//	flowgate version
//
//	# Validate a policy rules file
//	flowgate lint --file rules.yaml
package main

func main() {
	Execute()
}
