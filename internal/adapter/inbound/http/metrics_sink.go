package http

import "github.com/veilgate/veilgate/internal/domain/secevent"

// MetricsSink records emitted security events as Prometheus counters. It
// implements secevent.Sink and is meant to be combined with a queryable
// sink (eventstore.Store) via secevent.NewMultiSink.
type MetricsSink struct {
	metrics *Metrics
}

// NewMetricsSink wraps metrics as a secevent.Sink.
func NewMetricsSink(metrics *Metrics) MetricsSink {
	return MetricsSink{metrics: metrics}
}

// Emit implements secevent.Sink.
func (s MetricsSink) Emit(e secevent.Event) {
	switch e.Kind {
	case secevent.KindSecretSubstituted:
		s.metrics.SecretsRedacted.Inc()
	case secevent.KindSanitizationBlocked:
		s.metrics.SanitizationActions.WithLabelValues(violationLabel(e), "block").Inc()
	case secevent.KindPatternMatch:
		s.metrics.SanitizationActions.WithLabelValues(violationLabel(e), "redact").Inc()
	case secevent.KindRateLimitExceeded:
		s.metrics.RateLimitThrottled.WithLabelValues("request").Inc()
	case secevent.KindUnauthorizedVaultAccess:
		// Tracked via the event store only; no dedicated gauge yet.
	}
}

func violationLabel(e secevent.Event) string {
	tags, ok := e.Details["violations"].([]string)
	if !ok || len(tags) == 0 {
		return "unknown"
	}
	return tags[0]
}

var _ secevent.Sink = MetricsSink{}
