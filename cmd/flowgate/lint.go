package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"flowgate-hq/flowgate/pkg/policy/source"
)

var lintFlags struct {
	file   string
	dir    string
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate policy rules files",
	Long: `Validate policy rules files for syntax and structural errors.

The lint command parses rules files the same way the running gateway
does: YAML syntax, rule structure, known effects, and condition fields
are all checked.

Examples:
  # Lint a single file
  flowgate lint --file rules.yaml

  # Lint a directory
  flowgate lint --dir rules/

  # JSON output for CI
  flowgate lint --file rules.yaml --format json`,
	RunE: lintRules,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.file, "file", "f", "", "rules file to validate")
	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of rules files")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

// lintResult is the validation outcome for a single rules file.
type lintResult struct {
	File  string `json:"file"`
	Valid bool   `json:"valid"`
	Rules int    `json:"rules"`
	Error string `json:"error,omitempty"`
}

func lintRules(cmd *cobra.Command, args []string) error {
	if lintFlags.file == "" && lintFlags.dir == "" {
		return fmt.Errorf("either --file or --dir must be specified")
	}

	var files []string
	if lintFlags.file != "" {
		files = append(files, lintFlags.file)
	}
	if lintFlags.dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(lintFlags.dir, pattern))
			if err != nil {
				return fmt.Errorf("failed to list rules files: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no rules files found")
	}

	results := make([]lintResult, 0, len(files))
	failed := false
	for _, file := range files {
		result := lintResult{File: file, Valid: true}
		rules, err := source.LoadFile(file)
		if err != nil {
			result.Valid = false
			result.Error = err.Error()
			failed = true
		} else {
			result.Rules = len(rules)
		}
		results = append(results, result)
	}

	if lintFlags.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Printf("✓ %s (%d rules)\n", r.File, r.Rules)
			} else {
				fmt.Printf("✗ %s: %s\n", r.File, r.Error)
			}
		}
	}

	if failed {
		return fmt.Errorf("validation failed")
	}
	return nil
}
