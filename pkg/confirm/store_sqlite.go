package confirm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore is the persistent Store implementation. It survives
// process restarts, so a token issued before a redeploy can still be
// consumed afterwards. The consume path relies on a conditional UPDATE,
// which SQLite executes atomically under its single-writer model; the
// exactly-once contract therefore holds across processes sharing the
// database file, not just across goroutines.
type SQLiteStore struct {
	db *sql.DB
}

const tokenSchema = `
CREATE TABLE IF NOT EXISTS confirm_tokens (
	value TEXT PRIMARY KEY,
	id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	issued_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	consumed INTEGER NOT NULL DEFAULT 0,
	consumed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_confirm_tokens_expires_at ON confirm_tokens(expires_at);
`

// NewSQLiteStore opens (creating if needed) the token database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("token db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(tokenSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put stores a freshly minted token.
func (s *SQLiteStore) Put(ctx context.Context, token *Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO confirm_tokens (value, id, fingerprint, issued_at, expires_at, consumed, consumed_at)
		 VALUES (?, ?, ?, ?, ?, 0, NULL)`,
		token.Value, token.ID, token.Fingerprint,
		token.IssuedAt.UnixMilli(), token.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store confirm token: %w", err)
	}
	return nil
}

// Get returns the stored token.
func (s *SQLiteStore) Get(ctx context.Context, value string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, id, fingerprint, issued_at, expires_at, consumed, consumed_at
		 FROM confirm_tokens WHERE value = ?`, value)
	return scanToken(row)
}

// Consume validates and consumes in one conditional UPDATE. Zero rows
// affected means the token was missing or already consumed; the
// follow-up read distinguishes the failure reasons.
func (s *SQLiteStore) Consume(ctx context.Context, value, fingerprint string, now time.Time) (*Token, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE confirm_tokens SET consumed = 1, consumed_at = ?
		 WHERE value = ? AND consumed = 0 AND expires_at >= ? AND fingerprint = ?`,
		now.UnixMilli(), value, now.UnixMilli(), fingerprint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume confirm token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to consume confirm token: %w", err)
	}

	if affected == 1 {
		return s.Get(ctx, value)
	}

	// The conditional update did not fire; read the row to report why.
	token, err := s.Get(ctx, value)
	if err != nil {
		return nil, err // ErrTokenNotFound or a storage failure
	}
	switch {
	case token.Consumed:
		return nil, ErrTokenConsumed
	case now.After(token.ExpiresAt):
		return nil, ErrTokenExpired
	case token.Fingerprint != fingerprint:
		return nil, ErrFingerprintMismatch
	default:
		return nil, ErrTokenNotFound
	}
}

// Purge removes tokens whose expiry predates the cutoff.
func (s *SQLiteStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM confirm_tokens WHERE expires_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge confirm tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge confirm tokens: %w", err)
	}
	return int(affected), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanToken decodes one token row.
func scanToken(row *sql.Row) (*Token, error) {
	var t Token
	var issuedAt, expiresAt int64
	var consumed int
	var consumedAt sql.NullInt64

	err := row.Scan(&t.Value, &t.ID, &t.Fingerprint, &issuedAt, &expiresAt, &consumed, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read confirm token: %w", err)
	}

	t.IssuedAt = time.UnixMilli(issuedAt)
	t.ExpiresAt = time.UnixMilli(expiresAt)
	t.Consumed = consumed != 0
	if consumedAt.Valid {
		t.ConsumedAt = time.UnixMilli(consumedAt.Int64)
	}
	return &t, nil
}
