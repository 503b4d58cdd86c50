package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"flowgate-hq/flowgate/pkg/config"
)

// Collector is the main orchestrator for all Prometheus metrics in
// Flowgate. It manages metric registration and provides a unified
// interface for recording metrics across all components.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Decision metrics
	decisionMetrics *DecisionMetrics

	// Confirmation metrics
	confirmMetrics *ConfirmMetrics

	// Dispatch metrics
	dispatchMetrics *DispatchMetrics

	// Audit metrics
	auditMetrics *AuditMetrics
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is used.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "flowgate"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gateway"
	}
	if len(cfg.ExecutionDurationBuckets) == 0 {
		cfg.ExecutionDurationBuckets = config.DefaultExecutionDurationBuckets
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.decisionMetrics = NewDecisionMetrics(cfg, registry)
	c.confirmMetrics = NewConfirmMetrics(cfg, registry)
	c.dispatchMetrics = NewDispatchMetrics(cfg, registry)
	c.auditMetrics = NewAuditMetrics(cfg, registry)

	return c
}

// Decisions returns the policy decision metrics.
func (c *Collector) Decisions() *DecisionMetrics {
	return c.decisionMetrics
}

// Confirmations returns the confirmation token metrics.
func (c *Collector) Confirmations() *ConfirmMetrics {
	return c.confirmMetrics
}

// Dispatches returns the execution metrics.
func (c *Collector) Dispatches() *DispatchMetrics {
	return c.dispatchMetrics
}

// Audits returns the audit write metrics.
func (c *Collector) Audits() *AuditMetrics {
	return c.auditMetrics
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
