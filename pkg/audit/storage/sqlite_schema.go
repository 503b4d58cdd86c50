package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the audit database schema.
const Schema = `
-- Audit records table. Append-only: the application never issues
-- UPDATE or DELETE against it.
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,

    -- Timestamps (unix milliseconds)
    received_time INTEGER NOT NULL,
    decision_time INTEGER NOT NULL,
    recorded_time INTEGER NOT NULL,

    -- Action
    action_kind TEXT NOT NULL,
    environment TEXT NOT NULL,
    targets TEXT,
    params TEXT,
    tags TEXT,
    fingerprint TEXT NOT NULL,

    -- Classification
    tier TEXT NOT NULL,
    risk_level TEXT NOT NULL,

    -- Policy decision
    decision TEXT NOT NULL,
    matched_rule TEXT NOT NULL,
    rule_message TEXT,

    -- Confirmation
    token_id TEXT,
    confirmed_at INTEGER,

    -- Outcome
    outcome TEXT NOT NULL,
    target_results TEXT,
    duration_ms INTEGER,

    -- Error info
    error TEXT,
    error_type TEXT,

    -- Submitter
    actor TEXT,
    ip_address TEXT,

    -- Hash chain. Insertion order (rowid) walks the chain.
    prev_hash TEXT NOT NULL,
    record_hash TEXT NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for common query patterns
CREATE INDEX IF NOT EXISTS idx_audit_recorded_time ON audit_records(recorded_time);
CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_records(request_id);
CREATE INDEX IF NOT EXISTS idx_audit_action_kind ON audit_records(action_kind);
CREATE INDEX IF NOT EXISTS idx_audit_decision ON audit_records(decision);
CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_records(outcome);
`
