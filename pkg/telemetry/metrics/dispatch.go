package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"flowgate-hq/flowgate/pkg/config"
)

// DispatchMetrics tracks metrics related to action execution.
//
// Metrics:
//   - flowgate_gateway_executions_total: Completed executions by kind and outcome
//   - flowgate_gateway_target_results_total: Per-target results by status
//   - flowgate_gateway_execution_duration_seconds: Per-target execution duration
//   - flowgate_gateway_executions_in_flight: Currently executing targets
type DispatchMetrics struct {
	// Completed action executions
	executionsTotal *prometheus.CounterVec

	// Per-target results
	targetResultsTotal *prometheus.CounterVec

	// Per-target execution duration histogram
	executionDuration *prometheus.HistogramVec

	// Currently executing targets
	inFlight prometheus.Gauge
}

// NewDispatchMetrics creates and registers dispatch metrics with the provided registry.
func NewDispatchMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DispatchMetrics {
	dm := &DispatchMetrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "executions_total",
				Help:      "Total number of completed action executions",
			},
			[]string{"kind", "outcome"},
		),

		targetResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "target_results_total",
				Help:      "Total number of per-target execution results",
			},
			[]string{"kind", "status"},
		),

		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "execution_duration_seconds",
				Help:      "Duration of per-target execution in seconds",
				Buckets:   cfg.ExecutionDurationBuckets,
			},
			[]string{"kind"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "executions_in_flight",
				Help:      "Number of targets currently executing",
			},
		),
	}

	registry.MustRegister(
		dm.executionsTotal,
		dm.targetResultsTotal,
		dm.executionDuration,
		dm.inFlight,
	)

	return dm
}

// RecordExecution records a completed action execution.
func (dm *DispatchMetrics) RecordExecution(kind, outcome string) {
	dm.executionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordTargetResult records one per-target result.
func (dm *DispatchMetrics) RecordTargetResult(kind, status string, duration time.Duration) {
	dm.targetResultsTotal.WithLabelValues(kind, status).Inc()
	dm.executionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ExecutionStarted increments the in-flight gauge.
func (dm *DispatchMetrics) ExecutionStarted() {
	dm.inFlight.Inc()
}

// ExecutionFinished decrements the in-flight gauge.
func (dm *DispatchMetrics) ExecutionFinished() {
	dm.inFlight.Dec()
}
