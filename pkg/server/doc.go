// Package server exposes the gateway over HTTP.
//
// # Endpoints
//
//	POST /v1/actions  submit an action for gated execution
//	GET  /v1/audit    query the audit trail
//	GET  /healthz     liveness probe
//	GET  /metrics     Prometheus exposition (when enabled)
//
// The server is deliberately thin. Every submission goes through the
// dispatcher, so policy evaluation, the confirmation handshake, and
// audit recording cannot be bypassed by reaching this surface directly.
//
// # Response Shapes
//
// POST /v1/actions answers with exactly one of three bodies: a pending
// confirmation (202), a denial (403 for policy, 409 for a failed token
// handshake), or an execution outcome (200, with per-target detail for
// batch actions). Partial batch failures are still 200; the outcome
// body carries status "error" and the counts.
//
// # Basic Usage
//
//	srv := server.NewServer(cfg, dispatcher, auditStore, collector)
//	if err := srv.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
