package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Providers bundles the tracer and meter providers so main can flush and
// shut both down together on exit.
type Providers struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// Setup builds stdout-backed tracer and meter providers and installs them
// as the OpenTelemetry globals. dev controls trace sampling: dev mode
// samples every span, production samples one in sampleDivisor.
func Setup(dev bool) (*Providers, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: creating trace exporter: %w", err)
	}

	sampler := trace.TraceIDRatioBased(0.1)
	if dev {
		sampler = trace.AlwaysSample()
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("observability: creating metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(snapshotInterval))),
	)
	otel.SetMeterProvider(mp)

	return &Providers{TracerProvider: tp, MeterProvider: mp}, nil
}

// Shutdown flushes and stops both providers. Safe to call on a nil p.
func (p *Providers) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	_ = p.TracerProvider.Shutdown(ctx)
	_ = p.MeterProvider.Shutdown(ctx)
}
