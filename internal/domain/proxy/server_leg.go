package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/veilgate/veilgate/internal/domain/secevent"
	"github.com/veilgate/veilgate/internal/domain/validation"
	"github.com/veilgate/veilgate/internal/port/outbound"
	"github.com/veilgate/veilgate/pkg/mcp"
)

// ServerState is the ServerLeg state machine described in spec §4.8.
type ServerState int

const (
	ServerIdle ServerState = iota
	ServerConnecting
	ServerConnected
	ServerReconnecting
	ServerClosed
)

func (s ServerState) String() string {
	switch s {
	case ServerIdle:
		return "idle"
	case ServerConnecting:
		return "connecting"
	case ServerConnected:
		return "connected"
	case ServerReconnecting:
		return "reconnecting"
	case ServerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ServerLegConfig parameterizes reconnect backoff and outbound queueing.
// Defaults match spec §4.8, not the larger values the teacher's
// upstream_manager.go used for a multi-upstream router.
type ServerLegConfig struct {
	InitialDelay time.Duration
	MaxAttempts  int
	MaxQueueSize int
}

// DefaultServerLegConfig returns spec §4.8's defaults: 1s initial delay,
// doubling per attempt, 5 attempts, a 100-message pending queue.
func DefaultServerLegConfig() ServerLegConfig {
	return ServerLegConfig{InitialDelay: time.Second, MaxAttempts: 5, MaxQueueSize: 100}
}

// ServerLeg owns the downstream MCP server connection for one client
// connection: dialing, reconnect-with-backoff, a bounded pending-send queue
// for outage windows, and inbound (server->client) sanitization.
type ServerLeg struct {
	connectionID string
	client       outbound.MCPClient
	sanitizer    *validation.Sanitizer
	cfg          ServerLegConfig
	sink         secevent.Sink
	logger       *slog.Logger
	out          *FramedWriter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   ServerState
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	queue   [][]byte
	attempt int

	closed     chan struct{}
	closedOnce sync.Once
}

// NewServerLeg constructs a ServerLeg. sanitizer is shared with the owning
// ClientLeg so both directions resolve against the same vault scope.
func NewServerLeg(connectionID string, client outbound.MCPClient, sanitizer *validation.Sanitizer, out *FramedWriter, sink secevent.Sink, logger *slog.Logger, cfg ServerLegConfig) *ServerLeg {
	ctx, cancel := context.WithCancel(context.Background())
	return &ServerLeg{
		connectionID: connectionID,
		client:       client,
		sanitizer:    sanitizer,
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		out:          out,
		ctx:          ctx,
		cancel:       cancel,
		state:        ServerIdle,
		closed:       make(chan struct{}),
	}
}

// Start dials the downstream server once. On failure it transitions to
// Reconnecting and schedules backoff retries in the background; Start
// itself does not block on those retries, so a slow or absent downstream
// server doesn't stall connection setup (the pending queue absorbs traffic
// meanwhile, per scenario S6).
func (s *ServerLeg) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *ServerLeg) connectLocked() error {
	s.state = ServerConnecting
	stdin, stdout, err := s.client.Start(s.ctx)
	if err != nil {
		s.logger.Warn("downstream connect failed", "connection_id", s.connectionID, "error", err)
		s.scheduleRetryLocked()
		return nil
	}

	s.stdin = stdin
	s.stdout = stdout
	s.state = ServerConnected
	s.attempt = 0

	go s.readLoop(stdout)
	s.drainQueueLocked()

	return nil
}

// State returns the current ServerLeg state.
func (s *ServerLeg) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected implements Downstream.
func (s *ServerLeg) Connected() bool {
	return s.State() == ServerConnected
}

// Closed implements Downstream. The returned channel is closed once, the
// moment ServerLeg reaches ServerClosed — whether from an explicit Close()
// or from exhausting its reconnect attempts — so the owning ClientLeg can
// tear down rather than answering every subsequent client frame with
// "MCP server not connected" forever.
func (s *ServerLeg) Closed() <-chan struct{} {
	return s.closed
}

func (s *ServerLeg) signalClosedLocked() {
	s.closedOnce.Do(func() { close(s.closed) })
}

// Send resubstitutes any vault placeholders in tree, marshals it, and
// either writes it immediately (Connected) or enqueues it (disconnected).
// A full queue drops the newest message rather than evicting older ones.
func (s *ServerLeg) Send(tree interface{}) error {
	resolved, _ := s.sanitizer.Resubstitute(tree)
	raw, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("proxy: marshaling outbound message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == ServerClosed {
		return ErrClosed
	}

	if s.state == ServerConnected {
		if err := s.writeLocked(raw); err != nil {
			s.handleWriteFailureLocked(err)
			return err
		}
		return nil
	}

	if len(s.queue) >= s.cfg.MaxQueueSize {
		return ErrQueueFull
	}
	s.queue = append(s.queue, raw)
	return nil
}

func (s *ServerLeg) writeLocked(raw []byte) error {
	if _, err := s.stdin.Write(raw); err != nil {
		return err
	}
	_, err := s.stdin.Write([]byte("\n"))
	return err
}

func (s *ServerLeg) drainQueueLocked() {
	pending := s.queue
	s.queue = nil
	for i, raw := range pending {
		if err := s.writeLocked(raw); err != nil {
			// Re-queue what didn't make it out and fall back to
			// reconnecting; the rest of the batch is lost in the
			// ordering sense but not dropped outright.
			s.queue = append(pending[i:], s.queue...)
			s.handleWriteFailureLocked(err)
			return
		}
	}
}

func (s *ServerLeg) handleWriteFailureLocked(err error) {
	s.logger.Warn("downstream write failed", "connection_id", s.connectionID, "error", err)
	if s.state == ServerClosed {
		return
	}
	s.closeTransportLocked()
	s.state = ServerReconnecting
	s.scheduleRetryLocked()
}

// readLoop scans newline-delimited JSON-RPC frames from the downstream
// server, sanitizes each in the ServerToClient direction, and forwards the
// result to the client transport. Framing mirrors the teacher's
// copyMessages scanner sizing: MCP messages can be large.
func (s *ServerLeg) readLoop(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if s.ctx.Err() != nil {
			return
		}
		raw := scanner.Bytes()

		tree, rpcErr := validation.ParseJSON(string(raw))
		if rpcErr != nil {
			// Not valid JSON; forward as-is rather than dropping a
			// message that may still be meaningful to the client.
			if err := s.out.WriteMessage(raw); err != nil {
				s.logger.Error("writing unparsed downstream message", "error", err)
			}
			continue
		}

		outcome, err := s.sanitizer.SanitizeMessage(tree, mcp.ServerToClient)
		if err != nil {
			s.logger.Error("sanitizing downstream message", "connection_id", s.connectionID, "error", err)
			continue
		}
		emitForOutcome(s.sink, s.connectionID, outcome, mcp.ServerToClient)

		if !outcome.Safe {
			s.logger.Warn("downstream message blocked by sanitizer", "connection_id", s.connectionID)
			continue
		}

		out, err := json.Marshal(outcome.Message)
		if err != nil {
			s.logger.Error("marshaling sanitized downstream message", "error", err)
			continue
		}
		if err := s.out.WriteMessage(out); err != nil {
			s.logger.Error("writing downstream message to client", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.logger.Warn("downstream read error", "connection_id", s.connectionID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == ServerClosed {
		return
	}
	s.logger.Warn("downstream connection lost, reconnecting", "connection_id", s.connectionID)
	s.closeTransportLocked()
	s.state = ServerReconnecting
	s.scheduleRetryLocked()
}

// scheduleRetryLocked schedules the next reconnect attempt with exponential
// backoff: initial_delay * 2^(attempt-1), capped at MaxAttempts tries.
func (s *ServerLeg) scheduleRetryLocked() {
	s.attempt++
	if s.attempt > s.cfg.MaxAttempts {
		s.state = ServerClosed
		s.logger.Error("downstream reconnect attempts exhausted", "connection_id", s.connectionID, "attempts", s.cfg.MaxAttempts)
		s.signalClosedLocked()
		return
	}

	delay := s.cfg.InitialDelay
	for i := 1; i < s.attempt; i++ {
		delay *= 2
	}

	attempt := s.attempt
	s.logger.Info("scheduling downstream reconnect", "connection_id", s.connectionID, "attempt", attempt, "delay", delay)

	go func() {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state != ServerReconnecting && s.state != ServerConnecting {
			return
		}
		_ = s.connectLocked()
	}()
}

func (s *ServerLeg) closeTransportLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
		s.stdout = nil
	}
	_ = s.client.Close()
}

// Close tears down the downstream connection permanently.
func (s *ServerLeg) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == ServerClosed {
		return nil
	}
	s.cancel()
	s.closeTransportLocked()
	s.state = ServerClosed
	s.signalClosedLocked()
	return nil
}
