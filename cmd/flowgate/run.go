package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"flowgate-hq/flowgate/pkg/audit"
	"flowgate-hq/flowgate/pkg/audit/recorder"
	"flowgate-hq/flowgate/pkg/audit/storage"
	"flowgate-hq/flowgate/pkg/config"
	"flowgate-hq/flowgate/pkg/confirm"
	"flowgate-hq/flowgate/pkg/dispatch"
	"flowgate-hq/flowgate/pkg/policy/classify"
	"flowgate-hq/flowgate/pkg/policy/source"
	"flowgate-hq/flowgate/pkg/server"
	"flowgate-hq/flowgate/pkg/telemetry/logging"
	"flowgate-hq/flowgate/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	rulesPath     string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Flowgate gateway",
	Long: `Start the Flowgate gateway with the specified configuration.

The gateway listens on the configured address and runs every submitted
action through classification, policy evaluation, the confirmation
handshake, and audit recording before anything executes.

Examples:
  # Start with default config
  flowgate run

  # Start with custom config
  flowgate run --config /etc/flowgate/config.yaml

  # Override listen address
  flowgate run --listen 0.0.0.0:8080

  # Validate config without starting the gateway
  flowgate run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.rulesPath, "rules", "", "override policy rules file path")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.rulesPath != "" {
		cfg.Policy.RulesPath = runFlags.rulesPath
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if _, err := logging.Setup(cfg.Telemetry.Logging, os.Stdout); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Flowgate v%s\n", Version)
	fmt.Println("✓ Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	// Audit trail
	auditStore, err := buildAuditStorage(cfg)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	rec, err := recorder.NewRecorder(auditStore, &recorder.Config{
		WriteTimeout: cfg.Audit.WriteTimeout,
		RedactParams: cfg.Audit.RedactParams,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audit recorder: %w", err)
	}
	fmt.Printf("✓ Audit trail initialized (%s)\n", cfg.Audit.Backend)

	// Confirmation broker
	tokenStore, err := buildTokenStore(cfg)
	if err != nil {
		return err
	}
	defer tokenStore.Close()

	broker := confirm.NewBroker(tokenStore, &confirm.Config{
		TTL:        cfg.Confirm.TTL,
		Retention:  cfg.Confirm.Retention,
		GCSchedule: cfg.Confirm.GCSchedule,
	})
	if cfg.Confirm.GCSchedule != "" {
		if err := broker.StartGC(ctx); err != nil {
			return fmt.Errorf("failed to start token GC: %w", err)
		}
		defer broker.StopGC()
	}
	fmt.Printf("✓ Confirmation broker initialized (%s, ttl %s)\n", cfg.Confirm.Backend, cfg.Confirm.TTL)

	// Policy rules
	provider, err := buildRuleProvider(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Policy rules loaded (%d rules)\n", len(provider.Rules()))

	classifier, err := classify.New(cfg.Policy.ExtraDestructivePatterns)
	if err != nil {
		return fmt.Errorf("failed to build classifier: %w", err)
	}

	// Dispatcher over the local exec backend. This is the only path to
	// execution; the server never reaches the backend directly.
	dispatcher := dispatch.NewDispatcher(
		classifier,
		provider,
		broker,
		rec,
		newLocalExecBackend(),
		collector,
		cfg.Dispatch,
	)

	srv := server.NewServer(cfg, dispatcher, auditStore, collector)

	fmt.Printf("✓ Gateway listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Actions endpoint: http://%s/v1/actions\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Audit endpoint: http://%s/v1/audit\n", cfg.Server.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

// loadConfig reads the config file, falling back to built-in defaults
// when the default path does not exist.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if cfgFile != "config.yaml" {
			return nil, fmt.Errorf("config file not found: %s", cfgFile)
		}
		slog.Info("no config file found, using defaults")
		return config.NewDefault(), nil
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func buildAuditStorage(cfg *config.Config) (audit.Storage, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.Audit.SQLite.Path,
			MaxOpenConns: cfg.Audit.SQLite.MaxOpenConns,
			BusyTimeout:  cfg.Audit.SQLite.BusyTimeout,
			WALMode:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		return store, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Audit.Backend)
	}
}

func buildTokenStore(cfg *config.Config) (confirm.Store, error) {
	switch cfg.Confirm.Backend {
	case "sqlite":
		store, err := confirm.NewSQLiteStore(cfg.Confirm.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open token database: %w", err)
		}
		return store, nil
	case "memory":
		return confirm.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported confirm backend: %s", cfg.Confirm.Backend)
	}
}

func buildRuleProvider(ctx context.Context, cfg *config.Config) (source.Provider, error) {
	if cfg.Policy.RulesPath == "" {
		// No rules file: every action falls through to the built-in
		// defaults.
		return source.NewStaticProvider(nil), nil
	}

	fs, err := source.NewFileSource(cfg.Policy.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy rules: %w", err)
	}

	if cfg.Policy.Watch {
		watcher, err := source.NewWatcher(fs, source.DefaultDebounceInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to watch policy rules: %w", err)
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Error("policy watcher stopped", "error", err)
			}
		}()
		slog.Info("policy hot reload enabled", "path", cfg.Policy.RulesPath)
	}

	return fs, nil
}
