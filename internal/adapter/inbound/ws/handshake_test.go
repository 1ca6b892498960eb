package ws

import (
	"net/http"
	"testing"
)

// TestAcceptKey_RFC6455Vector checks acceptKey against the worked example
// from RFC 6455 §1.3.
func TestAcceptKey_RFC6455Vector(t *testing.T) {
	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	const want = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="

	if got := acceptKey(key); got != want {
		t.Errorf("acceptKey(%q) = %q, want %q", key, got, want)
	}
}

func TestHeaderContainsToken(t *testing.T) {
	tests := []struct {
		value string
		token string
		want  bool
	}{
		{"Upgrade", "upgrade", true},
		{"keep-alive, Upgrade", "upgrade", true},
		{"keep-alive", "upgrade", false},
		{"", "upgrade", false},
	}

	for _, tt := range tests {
		h := make(http.Header)
		h.Set("Connection", tt.value)
		if got := headerContainsToken(h, "Connection", tt.token); got != tt.want {
			t.Errorf("headerContainsToken(%q, %q) = %v, want %v", tt.value, tt.token, got, tt.want)
		}
	}
}
