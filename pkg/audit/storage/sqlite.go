package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"flowgate-hq/flowgate/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO schema_version (version) VALUES (?)", SchemaVersion,
	); err != nil {
		return audit.NewStorageError("sqlite", "record_schema_version", err)
	}

	return nil
}

// Append persists an audit record.
func (s *SQLiteStorage) Append(ctx context.Context, record *audit.Record) error {
	targets, err := json.Marshal(record.Targets)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}
	params, err := json.Marshal(record.Params)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}
	tags, err := json.Marshal(record.Tags)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}
	results, err := json.Marshal(record.TargetResults)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}

	var confirmedAt any
	if record.ConfirmedAt != nil {
		confirmedAt = record.ConfirmedAt.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, request_id,
			received_time, decision_time, recorded_time,
			action_kind, environment, targets, params, tags, fingerprint,
			tier, risk_level,
			decision, matched_rule, rule_message,
			token_id, confirmed_at,
			outcome, target_results, duration_ms,
			error, error_type,
			actor, ip_address,
			prev_hash, record_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.RequestID,
		record.ReceivedTime.UnixMilli(), record.DecisionTime.UnixMilli(), record.RecordedTime.UnixMilli(),
		record.ActionKind, record.Environment, string(targets), string(params), string(tags), record.Fingerprint,
		record.Tier, record.RiskLevel,
		record.Decision, record.MatchedRule, record.RuleMessage,
		record.TokenID, confirmedAt,
		record.Outcome, string(results), record.DurationMS,
		record.Error, record.ErrorType,
		record.Actor, record.IPAddress,
		record.PrevHash, record.RecordHash,
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}

	return nil
}

// Query retrieves audit records matching the query filters, newest first.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	where, args := buildWhere(query)

	q := "SELECT " + recordColumns + " FROM audit_records" + where + " ORDER BY rowid DESC"
	if query != nil && query.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", query.Limit)
		if query.Offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", query.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*audit.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "query", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}

	return records, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhere(query)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records"+where, args...).Scan(&count)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// LastHash returns the hash of the most recently appended record.
func (s *SQLiteStorage) LastHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT record_hash FROM audit_records ORDER BY rowid DESC LIMIT 1",
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", audit.NewStorageError("sqlite", "last_hash", err)
	}
	return hash, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

const recordColumns = `id, request_id,
	received_time, decision_time, recorded_time,
	action_kind, environment, targets, params, tags, fingerprint,
	tier, risk_level,
	decision, matched_rule, rule_message,
	token_id, confirmed_at,
	outcome, target_results, duration_ms,
	error, error_type,
	actor, ip_address,
	prev_hash, record_hash`

// buildWhere translates query filters to a WHERE clause and args.
func buildWhere(query *audit.Query) (string, []any) {
	if query == nil {
		return "", nil
	}

	var (
		clauses []string
		args    []any
	)
	if query.StartTime != nil {
		clauses = append(clauses, "recorded_time >= ?")
		args = append(args, query.StartTime.UnixMilli())
	}
	if query.EndTime != nil {
		clauses = append(clauses, "recorded_time <= ?")
		args = append(args, query.EndTime.UnixMilli())
	}
	for col, val := range map[string]string{
		"request_id":  query.RequestID,
		"action_kind": query.ActionKind,
		"environment": query.Environment,
		"tier":        query.Tier,
		"decision":    query.Decision,
		"outcome":     query.Outcome,
		"actor":       query.Actor,
	} {
		if val != "" {
			clauses = append(clauses, col+" = ?")
			args = append(args, val)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// scanRecord scans one row into an audit record.
func scanRecord(rows *sql.Rows) (*audit.Record, error) {
	var (
		record                        audit.Record
		received, decided, recorded   int64
		targets, params, tags, results string
		confirmedAt                   sql.NullInt64
	)

	err := rows.Scan(
		&record.ID, &record.RequestID,
		&received, &decided, &recorded,
		&record.ActionKind, &record.Environment, &targets, &params, &tags, &record.Fingerprint,
		&record.Tier, &record.RiskLevel,
		&record.Decision, &record.MatchedRule, &record.RuleMessage,
		&record.TokenID, &confirmedAt,
		&record.Outcome, &results, &record.DurationMS,
		&record.Error, &record.ErrorType,
		&record.Actor, &record.IPAddress,
		&record.PrevHash, &record.RecordHash,
	)
	if err != nil {
		return nil, err
	}

	record.ReceivedTime = time.UnixMilli(received)
	record.DecisionTime = time.UnixMilli(decided)
	record.RecordedTime = time.UnixMilli(recorded)

	if confirmedAt.Valid {
		t := time.UnixMilli(confirmedAt.Int64)
		record.ConfirmedAt = &t
	}

	if err := json.Unmarshal([]byte(targets), &record.Targets); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &record.Params); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &record.Tags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(results), &record.TargetResults); err != nil {
		return nil, err
	}

	return &record, nil
}
