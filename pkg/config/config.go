package config

import "time"

// Config is the root configuration structure for Flowgate.
// It contains all configuration sections for the API server, policy
// engine, confirmation broker, dispatcher, audit recording, and
// telemetry settings.
type Config struct {
	// Server contains HTTP API server configuration including listen
	// address, timeouts, and shutdown behavior.
	Server ServerConfig `yaml:"server"`

	// Policy contains configuration for the policy engine including the
	// rules file location and watch mode.
	Policy PolicyConfig `yaml:"policy"`

	// Confirm contains configuration for the confirmation broker
	// including token TTL and store backend.
	Confirm ConfirmConfig `yaml:"confirm"`

	// Dispatch contains configuration for action execution including
	// concurrency limits and timeouts.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Audit contains configuration for audit recording and storage.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for observability including
	// logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Must accommodate the slowest permitted batch
	// execution. Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. In-flight executions get this long to finish and write
	// their audit records.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PolicyConfig contains configuration for the policy engine.
type PolicyConfig struct {
	// RulesPath is the path to the YAML policy rules file. Empty means
	// no custom rules: every action falls through to the built-in
	// defaults (reads allowed, everything else requires confirmation).
	RulesPath string `yaml:"rules_path"`

	// Watch enables hot reload of the rules file. A malformed edit is
	// rejected and the previous rules stay active.
	// Default: true when RulesPath is set
	Watch bool `yaml:"watch"`

	// ExtraDestructivePatterns are additional regular expressions
	// classified as destructive, on top of the built-in set.
	ExtraDestructivePatterns []string `yaml:"extra_destructive_patterns"`
}

// ConfirmConfig contains configuration for the confirmation broker.
type ConfirmConfig struct {
	// Backend selects the token store implementation.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLitePath is the token database file path, used when Backend is
	// "sqlite".
	// Default: "data/tokens.db"
	SQLitePath string `yaml:"sqlite_path"`

	// TTL is the token validity window.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// Retention is how long expired and consumed tokens are kept before
	// garbage collection.
	// Default: 24h
	Retention time.Duration `yaml:"retention"`

	// GCSchedule is the cron expression for the token garbage
	// collection sweep. Empty disables scheduled GC.
	// Default: "*/10 * * * *"
	GCSchedule string `yaml:"gc_schedule"`
}

// DispatchConfig contains configuration for action execution.
type DispatchConfig struct {
	// MaxConcurrency is the upper bound on concurrent per-target
	// executions within one batch action.
	// Default: 10
	MaxConcurrency int `yaml:"max_concurrency"`

	// DefaultTimeout is the per-target execution timeout applied when
	// the action does not carry its own.
	// Default: 60s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxTimeout caps the per-target timeout an action may request.
	// Default: 10m
	MaxTimeout time.Duration `yaml:"max_timeout"`

	// ContinueOnError controls whether remaining targets run after one
	// fails. When false the batch short-circuits and pending targets
	// are recorded as skipped.
	// Default: true
	ContinueOnError bool `yaml:"continue_on_error"`
}

// AuditConfig contains configuration for audit recording.
type AuditConfig struct {
	// Backend selects the audit storage implementation.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains settings for the SQLite backend.
	SQLite AuditSQLiteConfig `yaml:"sqlite"`

	// WriteTimeout is the timeout for a single audit write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RedactParams enables masking of sensitive parameter values before
	// records are written.
	// Default: true
	RedactParams bool `yaml:"redact_params"`
}

// AuditSQLiteConfig contains settings for the SQLite audit backend.
type AuditSQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// Redact enables masking of credential material in log output.
	// Default: true
	Redact bool `yaml:"redact"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "flowgate"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "gateway"
	Subsystem string `yaml:"subsystem"`

	// ExecutionDurationBuckets defines histogram buckets for per-target
	// execution duration (seconds).
	// Default: [0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 60.0, 300.0]
	ExecutionDurationBuckets []float64 `yaml:"execution_duration_buckets"`
}
