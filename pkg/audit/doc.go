// Package audit provides append-only audit recording for action
// submissions. Every terminal outcome of an action, whether denied,
// held for confirmation, executed, or failed, produces exactly one
// immutable record.
//
// # Architecture
//
// The audit system consists of two layers:
//
//  1. Audit Recorder - Builds records, redacts sensitive fields, and
//     maintains the hash chain
//  2. Storage Backend - Persists records (SQLite for production,
//     memory for tests)
//
// # Audit Records
//
// Each record captures:
//   - Action metadata (kind, environment, targets, redacted params)
//   - Classification (risk tier, risk level)
//   - Policy decision (effect, matched rule, message)
//   - Confirmation details (token ID, confirmation time) when present
//   - Execution outcome (per-target results, duration)
//   - Hash chain links (prev_hash, record_hash)
//
// # Recording Flow
//
// Recording is synchronous: the write completes before the action
// response is released, so a client can never observe a result that
// has no audit record.
//
//	Action Outcome
//	     ↓
//	Redact Params (masking, never deferred to read time)
//	     ↓
//	Chain Hashes (prev_hash ← last record_hash)
//	     ↓
//	Storage Backend (SQLite, WAL mode)
//
// # Tamper Evidence
//
// Each record's record_hash covers its content plus the previous
// record's hash. Altering or removing any stored record breaks the
// chain for every record after it, which VerifyChain detects.
//
// # Basic Usage
//
//	storage, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path: "data/audit.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer storage.Close()
//
//	rec, err := recorder.NewRecorder(storage, recorder.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Blocks until the record is durably written.
//	err = rec.Record(ctx, record)
package audit
