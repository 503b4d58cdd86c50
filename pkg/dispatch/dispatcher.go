package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flowgate-hq/flowgate/pkg/action"
	"flowgate-hq/flowgate/pkg/audit"
	"flowgate-hq/flowgate/pkg/audit/recorder"
	"flowgate-hq/flowgate/pkg/config"
	"flowgate-hq/flowgate/pkg/confirm"
	"flowgate-hq/flowgate/pkg/policy/classify"
	"flowgate-hq/flowgate/pkg/policy/engine"
	"flowgate-hq/flowgate/pkg/policy/source"
	"flowgate-hq/flowgate/pkg/telemetry/logging"
	"flowgate-hq/flowgate/pkg/telemetry/metrics"
)

// Dispatcher is the gate-then-execute orchestrator and the only path to
// the execution backend. Every submission runs the same sequence:
// validate, classify, evaluate, then deny, hold for confirmation, or
// execute. Each terminal produces exactly one audit record, written
// before the result is returned.
//
// Dispatchers are safe for concurrent use; unrelated actions share no
// state beyond the broker's token store and the audit chain.
type Dispatcher struct {
	classifier *classify.Classifier
	rules      source.Provider
	broker     *confirm.Broker
	recorder   *recorder.Recorder
	backend    Backend
	metrics    *metrics.Collector
	config     config.DispatchConfig
	logger     *slog.Logger
}

// NewDispatcher wires the gate components together. The metrics
// collector may be nil.
func NewDispatcher(
	classifier *classify.Classifier,
	rules source.Provider,
	broker *confirm.Broker,
	rec *recorder.Recorder,
	backend Backend,
	collector *metrics.Collector,
	cfg config.DispatchConfig,
) *Dispatcher {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = config.DefaultMaxConcurrency
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = config.DefaultDispatchTimeout
	}
	if cfg.MaxTimeout < cfg.DefaultTimeout {
		cfg.MaxTimeout = cfg.DefaultTimeout
	}

	return &Dispatcher{
		classifier: classifier,
		rules:      rules,
		broker:     broker,
		recorder:   rec,
		backend:    backend,
		metrics:    collector,
		config:     cfg,
		logger:     slog.Default().With("component", "dispatch"),
	}
}

// Dispatch runs one action through the gate. The returned Result holds
// exactly one of: a pending confirmation, a denial, or an execution
// outcome. An error return means the request itself was malformed;
// policy and handshake failures are Results, not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req *action.Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	tier := d.classifier.Classify(req)

	evalStart := time.Now()
	decision, err := engine.Evaluate(req, tier, d.rules.Rules())
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.Decisions().RecordDecision(decision.Rule, string(decision.Effect), string(tier), time.Since(evalStart))
	}

	d.logger.Info("action evaluated",
		"request_id", req.RequestID,
		"action_kind", req.Kind,
		"env", req.Env,
		"tier", tier,
		"effect", decision.Effect,
		"rule", decision.Rule,
	)

	switch decision.Effect {
	case engine.EffectDeny:
		return d.deny(ctx, req, decision, start)

	case engine.EffectRequireConfirm:
		if req.ConfirmToken == "" {
			return d.holdForConfirmation(ctx, req, decision, start)
		}
		token, denial := d.validateToken(ctx, req)
		if denial != nil {
			return d.reject(ctx, req, decision, denial, start)
		}
		return d.execute(ctx, req, decision, token, start)

	default:
		return d.execute(ctx, req, decision, nil, start)
	}
}

// deny handles an explicit policy deny: audit, then surface the rule.
func (d *Dispatcher) deny(ctx context.Context, req *action.Request, decision *engine.Decision, start time.Time) (*Result, error) {
	record := d.newRecord(ctx, req, decision, start)
	record.Outcome = "denied"
	d.writeAudit(ctx, record)

	if d.metrics != nil {
		d.metrics.Dispatches().RecordExecution(req.Kind, "denied")
	}

	return &Result{Denied: &Denial{
		Status:          "error",
		ErrorType:       ErrTypePolicyDenied,
		PolicyTriggered: decision.Rule,
		Message:         decision.Message,
	}}, nil
}

// holdForConfirmation mints a token and halts. Nothing executes on this
// branch; the caller gets the token and an action preview.
func (d *Dispatcher) holdForConfirmation(ctx context.Context, req *action.Request, decision *engine.Decision, start time.Time) (*Result, error) {
	token, err := d.broker.Issue(ctx, req.Fingerprint())
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.Confirmations().RecordIssued()
	}

	record := d.newRecord(ctx, req, decision, start)
	record.Outcome = "awaiting_confirmation"
	record.TokenID = token.ID
	d.writeAudit(ctx, record)

	return &Result{Pending: &PendingConfirmation{
		Status:          "pending_confirm",
		PolicyTriggered: decision.Rule,
		Message:         decision.Message,
		RiskLevel:       string(decision.RiskLevel),
		Preview:         preview(req, decision.Tier),
		ConfirmToken:    token.Value,
		ExpiresAt:       token.ExpiresAt,
	}}, nil
}

// validateToken checks a resubmitted token. On failure it returns the
// denial to surface; the specific reason is preserved so the caller can
// distinguish expiry from replay from tampering.
func (d *Dispatcher) validateToken(ctx context.Context, req *action.Request) (*confirm.Token, *Denial) {
	token, err := d.broker.Validate(ctx, req.ConfirmToken, req.Fingerprint())
	if err == nil {
		if d.metrics != nil {
			d.metrics.Confirmations().RecordValidation("ok")
		}
		return token, nil
	}

	var errType, result string
	switch {
	case errors.Is(err, confirm.ErrTokenNotFound):
		errType, result = ErrTypeTokenNotFound, "not_found"
	case errors.Is(err, confirm.ErrTokenExpired):
		errType, result = ErrTypeTokenExpired, "expired"
	case errors.Is(err, confirm.ErrTokenConsumed):
		errType, result = ErrTypeTokenConsumed, "consumed"
	case errors.Is(err, confirm.ErrFingerprintMismatch):
		errType, result = ErrTypeFingerprintMismatch, "fingerprint_mismatch"
	default:
		errType, result = ErrTypeTokenNotFound, "error"
	}
	if d.metrics != nil {
		d.metrics.Confirmations().RecordValidation(result)
	}

	return nil, &Denial{
		Status:    "error",
		ErrorType: errType,
		Message:   err.Error(),
	}
}

// reject handles a failed confirmation handshake: audit with the
// specific failure, then return the denial.
func (d *Dispatcher) reject(ctx context.Context, req *action.Request, decision *engine.Decision, denial *Denial, start time.Time) (*Result, error) {
	record := d.newRecord(ctx, req, decision, start)
	record.Outcome = "rejected"
	record.Error = denial.Message
	record.ErrorType = denial.ErrorType
	d.writeAudit(ctx, record)

	if d.metrics != nil {
		d.metrics.Dispatches().RecordExecution(req.Kind, "rejected")
	}

	return &Result{Denied: denial}, nil
}

// execute fans out to the backend and audits the aggregate outcome.
// token is non-nil when execution was gated on a confirmation.
func (d *Dispatcher) execute(ctx context.Context, req *action.Request, decision *engine.Decision, token *confirm.Token, start time.Time) (*Result, error) {
	outcome, errKind := d.runTargets(ctx, req)
	outcome.DurationSec = time.Since(start).Seconds()

	record := d.newRecord(ctx, req, decision, start)
	record.Outcome = auditOutcome(ctx, outcome)
	record.DurationMS = time.Since(start).Milliseconds()
	record.TargetResults = toTargetResults(outcome)
	record.Error = outcome.Error
	record.ErrorType = errKind
	if token != nil {
		record.TokenID = token.ID
		if !token.ConsumedAt.IsZero() {
			confirmedAt := token.ConsumedAt
			record.ConfirmedAt = &confirmedAt
		}
	}
	d.writeAudit(ctx, record)

	if d.metrics != nil {
		d.metrics.Dispatches().RecordExecution(req.Kind, record.Outcome)
	}

	return &Result{Outcome: outcome}, nil
}

// newRecord builds the audit record skeleton shared by all terminals.
// The submitter identity comes from the context, stamped by the
// transport layer; on a confirmed resubmission the actor recorded here
// is the confirmer.
func (d *Dispatcher) newRecord(ctx context.Context, req *action.Request, decision *engine.Decision, start time.Time) *audit.Record {
	return &audit.Record{
		RequestID:    req.RequestID,
		ReceivedTime: req.ReceivedAt,
		DecisionTime: start,
		ActionKind:   req.Kind,
		Environment:  string(req.Env),
		Targets:      req.Targets,
		Params:       req.Params,
		Tags:         req.Tags,
		Fingerprint:  req.Fingerprint(),
		Tier:         string(decision.Tier),
		RiskLevel:    string(decision.RiskLevel),
		Decision:     string(decision.Effect),
		MatchedRule:  decision.Rule,
		RuleMessage:  decision.Message,
		DurationMS:   time.Since(start).Milliseconds(),
		Actor:        logging.GetActor(ctx),
		IPAddress:    logging.GetClientIP(ctx),
	}
}

// writeAudit appends the record before the result is released. A
// recorder failure does not change the already-decided result; the
// recorder has emitted the fallback trace and the failure is surfaced
// operationally through logs and metrics.
func (d *Dispatcher) writeAudit(ctx context.Context, record *audit.Record) {
	start := time.Now()
	err := d.recorder.Record(ctx, record)

	if d.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		d.metrics.Audits().RecordWrite(result, time.Since(start))
	}
	if err != nil {
		d.logger.Error("audit write failed for terminal result",
			"request_id", record.RequestID,
			"outcome", record.Outcome,
			"error", err,
		)
	}
}

// auditOutcome maps an execution outcome to the audit outcome label.
func auditOutcome(ctx context.Context, outcome *ExecutionOutcome) string {
	switch {
	case ctx.Err() != nil && outcome.SkippedCount > 0:
		return "canceled"
	case outcome.FailureCount == 0 && outcome.SkippedCount == 0:
		return "executed"
	case outcome.SuccessCount > 0:
		return "partial_failure"
	default:
		return "failed"
	}
}

// toTargetResults converts per-target outcomes for the audit record.
func toTargetResults(outcome *ExecutionOutcome) []*audit.TargetResult {
	if len(outcome.PerTarget) == 0 {
		return nil
	}
	results := make([]*audit.TargetResult, 0, len(outcome.PerTarget))
	for _, t := range outcome.PerTarget {
		results = append(results, &audit.TargetResult{
			Target:     t.Target,
			Status:     string(t.Status),
			Output:     t.OutputSummary,
			Error:      t.Error,
			DurationMS: int64(t.DurationSec * 1000),
		})
	}
	return results
}
