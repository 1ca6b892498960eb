package secevent

import "time"

// VaultAdapter satisfies secret.EventSink by forwarding vault security
// events into the typed event channel, without secevent needing to import
// the secret package (Go interfaces are satisfied structurally).
type VaultAdapter struct {
	Sink Sink
}

// EmitUnauthorizedVaultAccess implements secret.EventSink.
func (a VaultAdapter) EmitUnauthorizedVaultAccess(connectionID, placeholder string) {
	a.Sink.Emit(Event{
		Kind:         KindUnauthorizedVaultAccess,
		ConnectionID: connectionID,
		Timestamp:    time.Now(),
		Details:      map[string]interface{}{"placeholder": placeholder},
	})
}
