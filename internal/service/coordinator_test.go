package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/veilgate/veilgate/internal/config"
	"github.com/veilgate/veilgate/internal/domain/proxy"
	"github.com/veilgate/veilgate/internal/domain/secevent"
	"github.com/veilgate/veilgate/internal/port/outbound"
)

// fakeMCPClient is a minimal downstream stub: it never sends anything back
// and closes cleanly, which is all HandleConnection's own bookkeeping needs.
type fakeMCPClient struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
}

func newFakeMCPClient() *fakeMCPClient {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	return &fakeMCPClient{stdinR: stdinR, stdinW: stdinW, stdoutR: stdoutR, stdoutW: stdoutW}
}

func (f *fakeMCPClient) Start(ctx context.Context) (io.WriteCloser, io.ReadCloser, error) {
	return f.stdinW, f.stdoutR, nil
}
func (f *fakeMCPClient) Wait() error { return nil }
func (f *fakeMCPClient) Close() error {
	_ = f.stdinW.Close()
	_ = f.stdoutW.Close()
	return nil
}

var _ outbound.MCPClient = (*fakeMCPClient)(nil)

func testConfig(t *testing.T, maxConnections int) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults(func(string) bool { return false })
	cfg.Proxy.MaxConnections = maxConnections
	cfg.Proxy.MCPServerURL = "stdio://fake"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T, maxConnections int) *ProxyCoordinator {
	t.Helper()
	coordinator, err := NewProxyCoordinator(testConfig(t, maxConnections), secevent.NopSink{}, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewProxyCoordinator() error = %v", err)
	}
	return coordinator
}

func TestHandleConnection_AcceptsAndReleasesConnection(t *testing.T) {
	coordinator := newTestCoordinator(t, 10)
	defer coordinator.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	client := newFakeMCPClient()

	var out bytes.Buffer
	clientIn, clientInW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- coordinator.HandleConnection(ctx, clientIn, proxy.NewFramedWriter(&out), func(connectionID string) (outbound.MCPClient, error) {
			return client, nil
		})
	}()

	// Give accept() a moment to register the session, then confirm it shows
	// up in the active count before tearing the connection down.
	if !waitForCondition(time.Second, func() bool { return coordinator.ActiveConnections() == 1 }) {
		t.Fatal("connection never became active")
	}

	cancel()
	_ = clientInW.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleConnection did not return after cancellation")
	}

	if got := coordinator.ActiveConnections(); got != 0 {
		t.Errorf("ActiveConnections() after close = %d, want 0", got)
	}
	if got := coordinator.TotalAccepted(); got != 1 {
		t.Errorf("TotalAccepted() = %d, want 1", got)
	}
}

func TestHandleConnection_RejectsOverMaxConnections(t *testing.T) {
	coordinator := newTestCoordinator(t, 1)
	defer coordinator.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientIn, clientInW := io.Pipe()
	defer clientInW.Close()
	var out bytes.Buffer
	go func() {
		_ = coordinator.HandleConnection(ctx, clientIn, proxy.NewFramedWriter(&out), func(connectionID string) (outbound.MCPClient, error) {
			return newFakeMCPClient(), nil
		})
	}()

	if !waitForCondition(time.Second, func() bool { return coordinator.ActiveConnections() == 1 }) {
		t.Fatal("first connection never became active")
	}

	secondIn, _ := io.Pipe()
	var secondOut bytes.Buffer
	err := coordinator.HandleConnection(ctx, secondIn, proxy.NewFramedWriter(&secondOut), func(connectionID string) (outbound.MCPClient, error) {
		return newFakeMCPClient(), nil
	})
	if !errors.Is(err, ErrMaxConnections) {
		t.Errorf("HandleConnection() over max_connections error = %v, want ErrMaxConnections", err)
	}
}

func TestReloadPatternRules_SwapsAtomically(t *testing.T) {
	coordinator := newTestCoordinator(t, 10)
	defer coordinator.Shutdown()

	before := coordinator.patterns.Load()
	if err := coordinator.ReloadPatternRules([]config.PatternRuleConfig{
		{Name: "test-rule", Pattern: `secret`, Action: "reject"},
	}); err != nil {
		t.Fatalf("ReloadPatternRules() error = %v", err)
	}
	after := coordinator.patterns.Load()

	if before == after {
		t.Error("ReloadPatternRules() did not swap the stored matcher pointer")
	}
}

func waitForCondition(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
