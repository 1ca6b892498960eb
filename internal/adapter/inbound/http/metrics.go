package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for veilgate.
type Metrics struct {
	ConnectionsTotal    prometheus.Counter
	ActiveConnections   prometheus.Gauge
	SanitizationActions *prometheus.CounterVec
	SecretsRedacted     prometheus.Counter
	RateLimitThrottled  *prometheus.CounterVec
	VaultSize           prometheus.Gauge
	RateLimiterCells    *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "veilgate",
				Name:      "connections_total",
				Help:      "Total number of inbound connections accepted",
			},
		),
		ActiveConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "veilgate",
				Name:      "active_connections",
				Help:      "Number of currently active connections",
			},
		),
		SanitizationActions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "veilgate",
				Name:      "sanitization_actions_total",
				Help:      "Total sanitization actions taken, by rule and action",
			},
			[]string{"rule", "action"}, // action=redact/block/allow
		),
		SecretsRedacted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "veilgate",
				Name:      "secrets_redacted_total",
				Help:      "Total credentials detected and replaced with vault placeholders",
			},
		),
		RateLimitThrottled: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "veilgate",
				Name:      "rate_limit_throttled_total",
				Help:      "Total requests rejected by rate limiting, by scope",
			},
			[]string{"scope"}, // scope=global/per_client/per_method
		),
		VaultSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "veilgate",
				Name:      "vault_entries",
				Help:      "Number of placeholder entries currently stored in the vault",
			},
		),
		RateLimiterCells: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "veilgate",
				Name:      "rate_limiter_cells",
				Help:      "Number of tracked GCRA buckets, by scope kind",
			},
			[]string{"scope"}, // scope=global/client/method
		),
	}
}
