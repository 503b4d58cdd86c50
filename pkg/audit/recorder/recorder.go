package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowgate-hq/flowgate/pkg/audit"
	"flowgate-hq/flowgate/pkg/redact"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// RedactParams enables masking of sensitive parameter values
	// before the record is written. Redaction happens at write time;
	// raw values never reach storage.
	// Default: true
	RedactParams bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		WriteTimeout: 5 * time.Second,
		RedactParams: true,
	}
}

// Recorder writes audit records synchronously. Record does not return
// until the storage write completes, so callers releasing an action
// response after Record are guaranteed the record exists.
//
// The recorder owns the hash chain: it is the only writer, and a mutex
// serializes chain advancement so concurrent actions still produce a
// linear chain.
type Recorder struct {
	storage audit.Storage
	config  *Config
	logger  *slog.Logger

	mu       sync.Mutex
	lastHash string
}

// NewRecorder creates an audit recorder over the given storage backend.
// It seeds the hash chain from the last stored record so the chain
// continues across restarts.
func NewRecorder(storage audit.Storage, config *Config) (*Recorder, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "audit.recorder")

	ctx, cancel := context.WithTimeout(context.Background(), config.WriteTimeout)
	defer cancel()

	lastHash, err := storage.LastHash(ctx)
	if err != nil {
		return nil, audit.NewRecorderError("", err)
	}

	r := &Recorder{
		storage:  storage,
		config:   config,
		logger:   logger,
		lastHash: lastHash,
	}

	logger.Info("audit recorder initialized",
		"write_timeout", config.WriteTimeout,
		"redact_params", config.RedactParams,
		"chain_seeded", lastHash != "",
	)

	return r, nil
}

// Record redacts, chains, and writes a record. It blocks until the
// write completes or the write timeout fires. On failure the full
// record content is emitted through the structured log as a fallback
// trace, and the error is returned so the caller can fail the action.
func (r *Recorder) Record(ctx context.Context, record *audit.Record) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.RecordedTime = time.Now()

	if r.config.RedactParams {
		record.Params = redact.MaskMap(record.Params)
		record.Error = redact.MaskString(record.Error)
		for _, tr := range record.TargetResults {
			tr.Output = redact.MaskString(tr.Output)
			tr.Error = redact.MaskString(tr.Error)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record.PrevHash = r.lastHash
	hash, err := ComputeHash(record)
	if err != nil {
		return audit.NewRecorderError(record.ID, err)
	}
	record.RecordHash = hash

	// The write must survive caller cancellation: a cancelled or
	// disconnected submission still produced a decision that has to
	// land in storage. Only the write timeout bounds it.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Append(writeCtx, record); err != nil {
		r.logger.Error("failed to write audit record, emitting fallback trace",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"action_kind", record.ActionKind,
			"decision", record.Decision,
			"outcome", record.Outcome,
			"error", err,
		)
		return audit.NewRecorderError(record.ID, err)
	}
	r.lastHash = record.RecordHash

	duration := time.Since(start)
	r.logger.Info("audit record written",
		"record_id", record.ID,
		"request_id", record.RequestID,
		"decision", record.Decision,
		"outcome", record.Outcome,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return nil
}
