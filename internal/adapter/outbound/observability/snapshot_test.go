package observability

import "testing"

type fakeGauges struct {
	active, vault int
}

func (f fakeGauges) ActiveConnections() int { return f.active }
func (f fakeGauges) VaultSize() int         { return f.vault }

func TestRegisterConnectionGauges(t *testing.T) {
	if err := RegisterConnectionGauges(fakeGauges{active: 2, vault: 5}); err != nil {
		t.Fatalf("RegisterConnectionGauges() error = %v", err)
	}
}
