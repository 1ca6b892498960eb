package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// snapshotInterval is how often the meter provider's periodic reader pulls
// observable gauge values and the stdout exporter prints them.
const snapshotInterval = 30 * time.Second

// ConnectionGauges is the minimal surface of ProxyCoordinator the snapshot
// needs — kept narrow so this package doesn't depend on internal/service.
type ConnectionGauges interface {
	ActiveConnections() int
	VaultSize() int
}

// RegisterConnectionGauges registers observable gauges for active
// connections and vault size against the global meter provider. The
// callback is invoked once per collection interval by the SDK, not on a
// separate timer — no goroutine of our own to manage.
func RegisterConnectionGauges(coordinator ConnectionGauges) error {
	meter := otel.Meter("veilgate")

	active, err := meter.Int64ObservableGauge("veilgate.active_connections")
	if err != nil {
		return err
	}
	vaultSize, err := meter.Int64ObservableGauge("veilgate.vault_size")
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(active, int64(coordinator.ActiveConnections()))
		o.ObserveInt64(vaultSize, int64(coordinator.VaultSize()))
		return nil
	}, active, vaultSize)
	return err
}
