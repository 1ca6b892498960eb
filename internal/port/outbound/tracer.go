package outbound

import "context"

// Tracer is the outbound port for the proxy's tracing adapter. StartSpan
// begins a span for one sanitize_message call, rooted under ctx (the
// connection's long-lived context); the returned end func records the
// outcome and closes the span.
type Tracer interface {
	StartSpan(ctx context.Context, connectionID, direction string) (end func(violations int, err error))
}

// NopTracer discards every span. Used when tracing isn't configured.
type NopTracer struct{}

// StartSpan implements Tracer.
func (NopTracer) StartSpan(context.Context, string, string) func(violations int, err error) {
	return func(int, error) {}
}
