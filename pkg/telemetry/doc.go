// Package telemetry groups the observability subpackages:
//
//   - logging: structured slog setup with credential redaction
//   - metrics: Prometheus collectors for decisions, confirmations,
//     executions, and audit writes
//
// Each subpackage is usable on its own; this package carries no code.
package telemetry
