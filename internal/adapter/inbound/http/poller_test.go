package http

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeSnapshotSource struct {
	active int
	vault  int
	total  uint64
}

func (f fakeSnapshotSource) ActiveConnections() int { return f.active }
func (f fakeSnapshotSource) VaultSize() int         { return f.vault }
func (f fakeSnapshotSource) TotalAccepted() uint64  { return f.total }
func (f fakeSnapshotSource) RateLimiterCellsByScope() map[string]int {
	return map[string]int{"global": 1, "client": 2, "method": 0}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return pb.GetGauge().GetValue()
}

func TestMetrics_Snapshot(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	lastTotal := metrics.snapshot(fakeSnapshotSource{active: 4, vault: 7, total: 2}, 0)
	if lastTotal != 2 {
		t.Errorf("snapshot() lastTotal = %d, want 2", lastTotal)
	}
	if got := gaugeValue(t, metrics.ActiveConnections); got != 4 {
		t.Errorf("ActiveConnections = %v, want 4", got)
	}
	if got := gaugeValue(t, metrics.VaultSize); got != 7 {
		t.Errorf("VaultSize = %v, want 7", got)
	}
	if got := counterValue(t, metrics.ConnectionsTotal); got != 2 {
		t.Errorf("ConnectionsTotal = %v, want 2", got)
	}

	// A second poll with an unchanged total must not double-count.
	lastTotal = metrics.snapshot(fakeSnapshotSource{active: 4, vault: 7, total: 2}, lastTotal)
	if got := counterValue(t, metrics.ConnectionsTotal); got != 2 {
		t.Errorf("ConnectionsTotal after unchanged poll = %v, want 2 (no double-count)", got)
	}

	// A third poll with a higher total adds only the delta.
	metrics.snapshot(fakeSnapshotSource{active: 4, vault: 7, total: 5}, lastTotal)
	if got := counterValue(t, metrics.ConnectionsTotal); got != 5 {
		t.Errorf("ConnectionsTotal after delta poll = %v, want 5", got)
	}
}
