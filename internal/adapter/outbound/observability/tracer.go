// Package observability wires OpenTelemetry into the proxy: one span per
// sanitize_message call, and a periodic stdout snapshot of vault size and
// rate-limit throttle counts. The reference stack uses the stdout exporters
// — there is no external collector in this deployment, so the trace/metric
// streams are meant for local inspection and integration tests, not a
// production backend.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veilgate/veilgate/internal/port/outbound"
)

var tracer = otel.Tracer("veilgate")

// SpanTracer implements outbound.Tracer against the global OpenTelemetry
// tracer provider.
type SpanTracer struct{}

// StartSpan implements outbound.Tracer.
func (SpanTracer) StartSpan(ctx context.Context, connectionID, direction string) func(violations int, err error) {
	_, span := tracer.Start(ctx, "sanitize_message",
		trace.WithAttributes(
			attribute.String("veilgate.connection_id", connectionID),
			attribute.String("veilgate.direction", direction),
		),
	)
	return func(violations int, err error) {
		span.SetAttributes(attribute.Int("veilgate.violations", violations))
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

var _ outbound.Tracer = SpanTracer{}
