package observability

import (
	"context"
	"testing"
)

func TestSetup_DevAndProd(t *testing.T) {
	for _, dev := range []bool{true, false} {
		providers, err := Setup(dev)
		if err != nil {
			t.Fatalf("Setup(%v) error = %v", dev, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil {
			t.Fatalf("Setup(%v) returned a provider bundle with a nil provider", dev)
		}
		providers.Shutdown(context.Background())
	}
}

func TestProviders_ShutdownNil(t *testing.T) {
	var providers *Providers
	providers.Shutdown(context.Background()) // must not panic
}
