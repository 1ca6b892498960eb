package http

import (
	"context"
	"time"
)

// SnapshotSource is the narrow view of the proxy coordinator the metrics
// poller needs. Kept separate from ConnectionCounter since it also reports
// the vault size and the lifetime connection count.
type SnapshotSource interface {
	ActiveConnections() int
	VaultSize() int
	TotalAccepted() uint64
	RateLimiterCellsByScope() map[string]int
}

const pollInterval = 5 * time.Second

// StartPoller periodically snapshots source into the gauge/counter metrics
// until ctx is done. ConnectionsTotal is derived from the monotonic
// TotalAccepted counter, since Prometheus counters only support Add/Inc.
func (m *Metrics) StartPoller(ctx context.Context, source SnapshotSource) {
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		var lastTotal uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lastTotal = m.snapshot(source, lastTotal)
			}
		}
	}()
}

// snapshot applies one poll of source to the gauges/counter and returns the
// new lastTotal, so StartPoller's loop and tests can share the same logic.
func (m *Metrics) snapshot(source SnapshotSource, lastTotal uint64) uint64 {
	total := source.TotalAccepted()
	if total > lastTotal {
		m.ConnectionsTotal.Add(float64(total - lastTotal))
		lastTotal = total
	}
	m.ActiveConnections.Set(float64(source.ActiveConnections()))
	m.VaultSize.Set(float64(source.VaultSize()))
	for scope, n := range source.RateLimiterCellsByScope() {
		m.RateLimiterCells.WithLabelValues(scope).Set(float64(n))
	}
	return lastTotal
}
