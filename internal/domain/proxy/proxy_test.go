package proxy

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/veilgate/veilgate/internal/adapter/outbound/memory"
	"github.com/veilgate/veilgate/internal/domain/ratelimit"
	"github.com/veilgate/veilgate/internal/domain/sanitize"
	"github.com/veilgate/veilgate/internal/domain/secevent"
	"github.com/veilgate/veilgate/internal/domain/secret"
	"github.com/veilgate/veilgate/internal/domain/validation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSanitizer(t *testing.T, connectionID string) *validation.Sanitizer {
	t.Helper()

	ansi := sanitize.NewAnsiFilter(true, sanitize.AnsiStrip)
	whitelist := sanitize.NewCharacterWhitelist(true, nil, nil)
	patterns, err := sanitize.NewPatternMatcher(nil)
	if err != nil {
		t.Fatalf("NewPatternMatcher() error = %v", err)
	}
	detector := secret.NewDetector(secret.DetectorConfig{})
	vault, err := secret.NewVault(secret.VaultConfig{}, nil)
	if err != nil {
		t.Fatalf("NewVault() error = %v", err)
	}

	return validation.NewSanitizer(connectionID, validation.Config{
		Ansi:           ansi,
		Whitelist:      whitelist,
		Patterns:       patterns,
		Detector:       detector,
		Vault:          vault,
		StrictMode:     true,
		SecretsEnabled: true,
	})
}

func newTestLimiter(perMinute int) *ratelimit.MultiScopeLimiter {
	engine := memory.NewRateLimiter()
	return ratelimit.NewMultiScopeLimiter(engine, ratelimit.MultiScopeConfig{
		Enabled: true,
		Global:  ratelimit.ScopeConfig{RequestsPerMinute: 100000, RequestsPerHour: 1000000},
		PerClient: ratelimit.ScopeConfig{
			RequestsPerMinute: perMinute,
			RequestsPerHour:   perMinute * 60,
		},
	})
}

// testSink records emitted events for assertion without pulling in a real
// event store.
type testSink struct {
	mu     sync.Mutex
	Events []secevent.Event
}

func (s *testSink) Emit(e secevent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, e)
}

func (s *testSink) hasKind(k secevent.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.Events {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
