package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"flowgate-hq/flowgate/pkg/config"
)

// AuditMetrics tracks metrics related to audit record writes.
//
// Metrics:
//   - flowgate_gateway_audit_writes_total: Audit writes by result
//   - flowgate_gateway_audit_write_duration_seconds: Audit write duration
type AuditMetrics struct {
	// Audit writes by result ("ok", "error")
	writesTotal *prometheus.CounterVec

	// Audit write duration histogram
	writeDuration prometheus.Histogram
}

// NewAuditMetrics creates and registers audit metrics with the provided registry.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_writes_total",
				Help:      "Total number of audit record writes",
			},
			[]string{"result"},
		),

		writeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_write_duration_seconds",
				Help:      "Duration of audit record writes in seconds",
				// Writes are on the request path; anything over ~100ms is a problem
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
		),
	}

	registry.MustRegister(
		am.writesTotal,
		am.writeDuration,
	)

	return am
}

// RecordWrite records one audit write and its result.
func (am *AuditMetrics) RecordWrite(result string, duration time.Duration) {
	am.writesTotal.WithLabelValues(result).Inc()
	am.writeDuration.Observe(duration.Seconds())
}
