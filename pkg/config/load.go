package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// The YAML is unmarshaled over a fully defaulted configuration, so keys
// absent from the file keep their default values, including booleans
// that default to true. The result is validated before returning.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Re-fill anything the file explicitly blanked.
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow
// the naming convention FLOWGATE_SECTION_FIELD (e.g.,
// FLOWGATE_SERVER_LISTEN_ADDRESS) and always take precedence over
// file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format FLOWGATE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("FLOWGATE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("FLOWGATE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("FLOWGATE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("FLOWGATE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Policy overrides
	if val := os.Getenv("FLOWGATE_POLICY_RULES_PATH"); val != "" {
		cfg.Policy.RulesPath = val
	}
	if val := os.Getenv("FLOWGATE_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}

	// Confirm overrides
	if val := os.Getenv("FLOWGATE_CONFIRM_BACKEND"); val != "" {
		cfg.Confirm.Backend = val
	}
	if val := os.Getenv("FLOWGATE_CONFIRM_SQLITE_PATH"); val != "" {
		cfg.Confirm.SQLitePath = val
	}
	if val := os.Getenv("FLOWGATE_CONFIRM_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Confirm.TTL = d
		}
	}
	if val := os.Getenv("FLOWGATE_CONFIRM_RETENTION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Confirm.Retention = d
		}
	}
	if val := os.Getenv("FLOWGATE_CONFIRM_GC_SCHEDULE"); val != "" {
		cfg.Confirm.GCSchedule = val
	}

	// Dispatch overrides
	if val := os.Getenv("FLOWGATE_DISPATCH_MAX_CONCURRENCY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Dispatch.MaxConcurrency = i
		}
	}
	if val := os.Getenv("FLOWGATE_DISPATCH_DEFAULT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Dispatch.DefaultTimeout = d
		}
	}
	if val := os.Getenv("FLOWGATE_DISPATCH_CONTINUE_ON_ERROR"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Dispatch.ContinueOnError = b
		}
	}

	// Audit overrides
	if val := os.Getenv("FLOWGATE_AUDIT_BACKEND"); val != "" {
		cfg.Audit.Backend = val
	}
	if val := os.Getenv("FLOWGATE_AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLite.Path = val
	}
	if val := os.Getenv("FLOWGATE_AUDIT_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Audit.WriteTimeout = d
		}
	}
	if val := os.Getenv("FLOWGATE_AUDIT_REDACT_PARAMS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.RedactParams = b
		}
	}

	// Telemetry overrides
	if val := os.Getenv("FLOWGATE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("FLOWGATE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("FLOWGATE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("FLOWGATE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
