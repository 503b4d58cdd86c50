// Package storage provides storage backends for audit records.
//
// The package defines no interface of its own; backends implement
// audit.Storage:
//
//   - SQLite: Embedded database for single-node deployments
//   - Memory: In-memory storage for testing
//
// The SQLite backend uses WAL mode for concurrent reads during writes,
// indexes on frequently queried fields, and a connection pool. The
// audit_records table is append-only: no code path issues UPDATE or
// DELETE against it.
package storage
