// Package config provides configuration loading, defaulting, and
// validation for Flowgate.
//
// Configuration is defined in YAML and loaded with LoadConfig or
// LoadConfigWithEnvOverrides. The loading sequence is:
//
//  1. Start from a fully defaulted configuration
//  2. Unmarshal the YAML file over it
//  3. Apply environment variable overrides (FLOWGATE_SECTION_FIELD)
//  4. Validate the final configuration
//
// All validation errors are collected and reported together rather
// than failing on the first problem.
//
// Example configuration:
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//	policy:
//	  rules_path: "policies.yaml"
//	  watch: true
//	confirm:
//	  backend: sqlite
//	  sqlite_path: "data/tokens.db"
//	  ttl: 5m
//	dispatch:
//	  max_concurrency: 10
//	  default_timeout: 60s
//	audit:
//	  backend: sqlite
//	  sqlite:
//	    path: "data/audit.db"
package config
