package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "flowgate",
	Short: "Flowgate - policy-gated execution engine",
	Long: `Flowgate is a policy-gated execution engine for operational actions.

Every proposed action is classified by risk, evaluated against ordered
policy rules, and either executed, held for explicit confirmation, or
denied. Every decision and execution leaves a hash-chained audit record.

  - Risk classification (read, write, destructive)
  - First-match policy rules with safe defaults
  - Single-use, fingerprint-bound confirmation tokens
  - Bounded-concurrency batch execution
  - Tamper-evident audit trail`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
