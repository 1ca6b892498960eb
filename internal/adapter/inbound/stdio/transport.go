// Package stdio provides the stdio transport adapter for the proxy: a
// single connection over the process's own stdin/stdout, for running
// veilgate as a local subprocess wrapper around an MCP client.
package stdio

import (
	"context"
	"os"

	"github.com/veilgate/veilgate/internal/domain/proxy"
	"github.com/veilgate/veilgate/internal/port/inbound"
	"github.com/veilgate/veilgate/internal/service"
)

// Transport is the inbound adapter that connects the proxy to stdin/stdout.
// It implements inbound.ProxyService.
type Transport struct {
	coordinator *service.ProxyCoordinator
	downstream  service.MCPClientFactory
}

// NewTransport creates a stdio transport adapter wrapping coordinator.
// downstream constructs the outbound MCP client for the one connection
// this transport ever serves.
func NewTransport(coordinator *service.ProxyCoordinator, downstream service.MCPClientFactory) *Transport {
	return &Transport{coordinator: coordinator, downstream: downstream}
}

// Start begins proxying between stdin and stdout. It blocks until the
// single stdio connection ends or ctx is cancelled.
func (t *Transport) Start(ctx context.Context) error {
	out := proxy.NewFramedWriter(os.Stdout)
	return t.coordinator.HandleConnection(ctx, os.Stdin, out, t.downstream)
}

// Close is a no-op for stdio: there is no listener to release.
func (t *Transport) Close() error {
	return nil
}

// Compile-time check that Transport implements inbound.ProxyService.
var _ inbound.ProxyService = (*Transport)(nil)
