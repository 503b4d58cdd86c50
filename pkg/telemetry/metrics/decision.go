package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"flowgate-hq/flowgate/pkg/config"
)

// DecisionMetrics tracks metrics related to policy evaluation.
//
// Metrics:
//   - flowgate_gateway_decisions_total: Total policy decisions by rule, effect, and tier
//   - flowgate_gateway_decision_duration_seconds: Policy evaluation duration
type DecisionMetrics struct {
	// Total policy decisions
	decisionsTotal *prometheus.CounterVec

	// Policy evaluation duration histogram
	decisionDuration prometheus.Histogram
}

// NewDecisionMetrics creates and registers decision metrics with the provided registry.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of policy decisions",
			},
			[]string{"rule", "effect", "tier"},
		),

		decisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				// Rule evaluation is in-memory and should stay well under a millisecond
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 12), // 1µs to 2ms
			},
		),
	}

	registry.MustRegister(
		dm.decisionsTotal,
		dm.decisionDuration,
	)

	return dm
}

// RecordDecision records one policy evaluation.
func (dm *DecisionMetrics) RecordDecision(rule, effect, tier string, duration time.Duration) {
	dm.decisionsTotal.WithLabelValues(rule, effect, tier).Inc()
	dm.decisionDuration.Observe(duration.Seconds())
}
