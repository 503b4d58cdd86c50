package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config contains configuration for the confirmation broker.
type Config struct {
	// TTL is the token validity window.
	// Default: 5 minutes
	TTL time.Duration

	// Retention is how long expired and consumed tokens are kept for
	// audit cross-referencing before garbage collection.
	// Default: 24 hours
	Retention time.Duration

	// GCSchedule is the cron expression for the garbage collection
	// sweep. Empty disables scheduled GC.
	// Default: every 10 minutes
	GCSchedule string
}

// DefaultConfig returns the default broker configuration.
func DefaultConfig() *Config {
	return &Config{
		TTL:        5 * time.Minute,
		Retention:  24 * time.Hour,
		GCSchedule: "*/10 * * * *",
	}
}

// Broker owns the token store exclusively: no other component mutates
// token state. It mints tokens for require_confirm decisions and
// validates resubmissions.
type Broker struct {
	store  Store
	config *Config
	logger *slog.Logger

	// now is injectable for expiry tests.
	now func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewBroker builds a broker over the given store.
func NewBroker(store Store, config *Config) *Broker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.Retention <= 0 {
		config.Retention = 24 * time.Hour
	}

	return &Broker{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "confirm.broker"),
		now:    time.Now,
	}
}

// Issue mints a token bound to the action fingerprint and stores it.
func (b *Broker) Issue(ctx context.Context, fingerprint string) (*Token, error) {
	token, err := newToken(fingerprint, b.config.TTL, b.now())
	if err != nil {
		return nil, err
	}

	if err := b.store.Put(ctx, token); err != nil {
		return nil, err
	}

	b.logger.Info("confirm token issued",
		"token_id", token.ID,
		"fingerprint", token.Fingerprint,
		"expires_at", token.ExpiresAt,
	)

	return token, nil
}

// Validate checks a resubmitted token against the action fingerprint
// and consumes it. The store's check-and-consume is atomic: of N
// concurrent validations of one token, exactly one succeeds and the
// rest return ErrTokenConsumed. Failures are always one of the typed
// reasons so the caller can distinguish expiry from tampering.
func (b *Broker) Validate(ctx context.Context, value, fingerprint string) (*Token, error) {
	token, err := b.store.Consume(ctx, value, fingerprint, b.now())
	if err != nil {
		b.logger.Warn("confirm token validation failed",
			"fingerprint", fingerprint,
			"reason", err,
		)
		return nil, err
	}

	b.logger.Info("confirm token consumed",
		"token_id", token.ID,
		"fingerprint", token.Fingerprint,
	)
	return token, nil
}

// StartGC schedules the retention sweep. The sweep removes tokens whose
// expiry is older than the retention window; live tokens are never
// touched. Stops when the context is cancelled.
func (b *Broker) StartGC(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("broker gc already running")
	}
	if b.config.GCSchedule == "" {
		b.logger.Info("token gc schedule not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(b.config.GCSchedule); err != nil {
		return fmt.Errorf("invalid gc schedule %q: %w", b.config.GCSchedule, err)
	}

	b.cron = cron.New()
	if _, err := b.cron.AddFunc(b.config.GCSchedule, func() {
		b.sweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule token gc: %w", err)
	}

	b.cron.Start()
	b.running = true

	b.logger.Info("token gc started",
		"schedule", b.config.GCSchedule,
		"retention", b.config.Retention,
	)

	go func() {
		<-ctx.Done()
		b.StopGC()
	}()

	return nil
}

// StopGC halts the scheduled sweep.
func (b *Broker) StopGC() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.cron.Stop()
	b.running = false
	b.logger.Info("token gc stopped")
}

// sweep runs one garbage collection pass.
func (b *Broker) sweep(ctx context.Context) {
	cutoff := b.now().Add(-b.config.Retention)
	removed, err := b.store.Purge(ctx, cutoff)
	if err != nil {
		b.logger.Error("token gc sweep failed", "error", err)
		return
	}
	if removed > 0 {
		b.logger.Info("token gc sweep completed", "removed", removed)
	}
}
