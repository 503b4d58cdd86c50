package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"flowgate-hq/flowgate/pkg/config"
)

// ConfirmMetrics tracks metrics related to confirmation tokens.
//
// Metrics:
//   - flowgate_gateway_confirm_tokens_issued_total: Tokens minted
//   - flowgate_gateway_confirm_validations_total: Validation attempts by result
type ConfirmMetrics struct {
	// Tokens minted for require_confirm decisions
	issuedTotal prometheus.Counter

	// Validation attempts by result ("ok", "not_found", "expired",
	// "consumed", "fingerprint_mismatch")
	validationsTotal *prometheus.CounterVec
}

// NewConfirmMetrics creates and registers confirmation metrics with the provided registry.
func NewConfirmMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ConfirmMetrics {
	cm := &ConfirmMetrics{
		issuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "confirm_tokens_issued_total",
				Help:      "Total number of confirmation tokens issued",
			},
		),

		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "confirm_validations_total",
				Help:      "Total number of confirmation token validation attempts",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		cm.issuedTotal,
		cm.validationsTotal,
	)

	return cm
}

// RecordIssued records a minted confirmation token.
func (cm *ConfirmMetrics) RecordIssued() {
	cm.issuedTotal.Inc()
}

// RecordValidation records a token validation attempt and its result.
func (cm *ConfirmMetrics) RecordValidation(result string) {
	cm.validationsTotal.WithLabelValues(result).Inc()
}
