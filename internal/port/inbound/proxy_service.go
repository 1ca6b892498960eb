// Package inbound defines the inbound port every transport adapter
// implements to drive the proxy coordinator.
package inbound

import "context"

// ProxyService is implemented by inbound transport adapters (stdio, ws).
// Start blocks until ctx is cancelled or the transport's connection(s) end.
type ProxyService interface {
	Start(ctx context.Context) error
	Close() error
}
