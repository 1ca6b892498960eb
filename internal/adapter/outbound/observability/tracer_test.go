package observability

import (
	"context"
	"errors"
	"testing"
)

func TestSpanTracer_StartSpanAndEnd(t *testing.T) {
	tracer := SpanTracer{}

	end := tracer.StartSpan(context.Background(), "conn-1", "inbound")
	if end == nil {
		t.Fatal("StartSpan() returned a nil end func")
	}

	// Must not panic whether or not an error is recorded.
	end(0, nil)

	end2 := tracer.StartSpan(context.Background(), "conn-2", "outbound")
	end2(3, errors.New("boom"))
}
