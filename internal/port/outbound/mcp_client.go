// Package outbound defines the outbound port interfaces for connecting to
// the downstream MCP server.
package outbound

import (
	"context"
	"io"
)

// MCPClient is the outbound port ServerLeg uses to reach the downstream MCP
// server. Adapters implement this to support different transports (stdio,
// HTTP).
type MCPClient interface {
	// Start launches the downstream connection. Returns the server's stdin
	// (for sending) and stdout (for receiving).
	Start(ctx context.Context) (stdin io.WriteCloser, stdout io.ReadCloser, err error)

	// Wait blocks until the downstream connection terminates. Returns nil
	// on graceful shutdown, error on failure.
	Wait() error

	// Close terminates the downstream connection and releases resources.
	Close() error
}
