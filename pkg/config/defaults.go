package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Confirm defaults
	DefaultConfirmBackend    = "memory"
	DefaultConfirmSQLitePath = "data/tokens.db"
	DefaultConfirmTTL        = 5 * time.Minute
	DefaultConfirmRetention  = 24 * time.Hour
	DefaultConfirmGCSchedule = "*/10 * * * *"

	// Dispatch defaults
	DefaultMaxConcurrency  = 10
	DefaultDispatchTimeout = 60 * time.Second
	DefaultMaxTimeout      = 10 * time.Minute
	DefaultContinueOnError = true

	// Audit defaults
	DefaultAuditBackend           = "sqlite"
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultAuditSQLiteMaxConns    = 10
	DefaultAuditSQLiteBusyTimeout = 5 * time.Second
	DefaultAuditWriteTimeout      = 5 * time.Second
	DefaultAuditRedactParams      = true

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultLoggingRedact  = true
	DefaultMetricsEnabled = true
	DefaultPrometheusPath = "/metrics"
	DefaultMetricsNS      = "flowgate"
	DefaultMetricsSub     = "gateway"
)

// DefaultExecutionDurationBuckets are the histogram buckets for
// per-target execution duration, spanning quick API calls through
// long-running batch operations.
var DefaultExecutionDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 60.0, 300.0}

// ApplyDefaults fills in default values for any unset configuration fields.
// It modifies the configuration in place.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Confirm defaults
	if cfg.Confirm.Backend == "" {
		cfg.Confirm.Backend = DefaultConfirmBackend
	}
	if cfg.Confirm.SQLitePath == "" {
		cfg.Confirm.SQLitePath = DefaultConfirmSQLitePath
	}
	if cfg.Confirm.TTL == 0 {
		cfg.Confirm.TTL = DefaultConfirmTTL
	}
	if cfg.Confirm.Retention == 0 {
		cfg.Confirm.Retention = DefaultConfirmRetention
	}
	if cfg.Confirm.GCSchedule == "" {
		cfg.Confirm.GCSchedule = DefaultConfirmGCSchedule
	}

	// Dispatch defaults
	if cfg.Dispatch.MaxConcurrency == 0 {
		cfg.Dispatch.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Dispatch.DefaultTimeout == 0 {
		cfg.Dispatch.DefaultTimeout = DefaultDispatchTimeout
	}
	if cfg.Dispatch.MaxTimeout == 0 {
		cfg.Dispatch.MaxTimeout = DefaultMaxTimeout
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = DefaultAuditSQLitePath
	}
	if cfg.Audit.SQLite.MaxOpenConns == 0 {
		cfg.Audit.SQLite.MaxOpenConns = DefaultAuditSQLiteMaxConns
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultAuditSQLiteBusyTimeout
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNS
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSub
	}
	if len(cfg.Telemetry.Metrics.ExecutionDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.ExecutionDurationBuckets = DefaultExecutionDurationBuckets
	}
}

// NewDefault returns a configuration populated entirely with defaults.
// Boolean fields that default to true are set here because ApplyDefaults
// cannot distinguish "false" from "unset".
func NewDefault() *Config {
	cfg := &Config{}
	cfg.Policy.Watch = true
	cfg.Dispatch.ContinueOnError = DefaultContinueOnError
	cfg.Audit.RedactParams = DefaultAuditRedactParams
	cfg.Telemetry.Logging.Redact = DefaultLoggingRedact
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	ApplyDefaults(cfg)
	return cfg
}
