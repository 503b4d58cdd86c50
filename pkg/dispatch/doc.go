// Package dispatch implements the gate-then-execute orchestration for
// action requests. The Dispatcher is the single path to the execution
// backend: an action reaches the backend only after it has been
// classified, evaluated against policy, and, when required, confirmed
// by a human through the token handshake.
//
// # State machine
//
//	Received → Classified → Evaluated → Allowed   → Executing → Completed|Failed
//	                                  → PendingConfirm (halt, token minted)
//	                                  → Denied    (terminal)
//
// A resubmission carrying a confirm token re-enters the same sequence;
// the broker's atomic consume guarantees the execution happens at most
// once no matter how many resubmissions race.
//
// # Batch execution
//
// Multi-target actions fan out under a bounded worker pool. Per-target
// outcomes are collected independently; continue_on_error controls
// whether a failure short-circuits targets that have not started.
// Cancellation never kills a started backend operation: in-flight
// targets run to completion and the audit record reflects what was
// started versus skipped.
//
// Every terminal (denial, pending confirmation, rejection, execution)
// writes its audit record before the result is returned to the caller.
package dispatch
