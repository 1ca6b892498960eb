package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/veilgate/veilgate/internal/domain/ratelimit"
	"github.com/veilgate/veilgate/internal/domain/secevent"
	"github.com/veilgate/veilgate/internal/domain/validation"
	"github.com/veilgate/veilgate/pkg/mcp"
)

// ClientState is the ClientLeg state machine described in spec §4.8.
type ClientState int

const (
	ClientAccepted ClientState = iota
	ClientHandshaking
	ClientForwarding
	ClientClosing
	ClientClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientAccepted:
		return "accepted"
	case ClientHandshaking:
		return "handshaking"
	case ClientForwarding:
		return "forwarding"
	case ClientClosing:
		return "closing"
	case ClientClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Downstream is the interface ClientLeg forwards sanitized requests
// through. ServerLeg implements it; tests can substitute a fake.
type Downstream interface {
	Send(tree interface{}) error
	Connected() bool

	// Closed returns a channel that is closed once the downstream
	// connection is permanently gone (explicit Close, or reconnect
	// attempts exhausted), so Run can tear down instead of reading client
	// frames forever against a dead downstream.
	Closed() <-chan struct{}
}

// ClientLeg owns one client connection's inbound pipeline: frame decoding,
// JSON-RPC structural validation, rate limiting, and ClientToServer
// sanitization, per spec §4.8's six-step Forwarding pipeline.
type ClientLeg struct {
	connectionID string
	sanitizer    *validation.Sanitizer
	limiter      *ratelimit.MultiScopeLimiter
	sink         secevent.Sink
	out          *FramedWriter
	downstream   Downstream
	logger       *slog.Logger

	mu    sync.Mutex
	state ClientState
}

// NewClientLeg constructs a ClientLeg. out is the shared, synchronized
// writer back to the client transport, used for JSON-RPC error responses;
// downstream receives sanitized requests that pass every pipeline stage.
func NewClientLeg(connectionID string, sanitizer *validation.Sanitizer, limiter *ratelimit.MultiScopeLimiter, sink secevent.Sink, out *FramedWriter, downstream Downstream, logger *slog.Logger) *ClientLeg {
	return &ClientLeg{
		connectionID: connectionID,
		sanitizer:    sanitizer,
		limiter:      limiter,
		sink:         sink,
		out:          out,
		downstream:   downstream,
		logger:       logger,
		state:        ClientAccepted,
	}
}

// State returns the current ClientLeg state.
func (c *ClientLeg) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ClientLeg) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run reads newline-delimited JSON-RPC frames from clientIn until it is
// exhausted, ctx is cancelled, or the downstream connection closes
// permanently, running each frame through the Forwarding pipeline. It
// blocks until the connection ends.
func (c *ClientLeg) Run(ctx context.Context, clientIn io.Reader) error {
	c.setState(ClientHandshaking)
	c.setState(ClientForwarding)
	defer c.setState(ClientClosing)

	frames := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(frames)
		scanner := bufio.NewScanner(clientIn)
		buf := make([]byte, 0, 256*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			frames <- line
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			c.setState(ClientClosed)
			return ctx.Err()
		case <-c.downstream.Closed():
			c.setState(ClientClosed)
			return ErrReconnectExhausted
		case line, ok := <-frames:
			if !ok {
				c.setState(ClientClosed)
				if err := <-scanErr; err != nil {
					return fmt.Errorf("proxy: reading client frame: %w", err)
				}
				return nil
			}
			c.handleFrame(line)
		}
	}
}

// handleFrame runs one frame through decode -> parse -> validate ->
// rate-limit -> sanitize -> forward, writing a JSON-RPC error response for
// any stage it fails at rather than forwarding.
func (c *ClientLeg) handleFrame(raw []byte) {
	frameCopy := append([]byte(nil), raw...)

	s, rpcErr := validation.DecodeFrame(frameCopy)
	if rpcErr != nil {
		c.reject(nil, rpcErr)
		return
	}

	tree, rpcErr := validation.ParseJSON(s)
	if rpcErr != nil {
		c.reject(nil, rpcErr)
		return
	}

	id, rpcErr := validation.ValidateJSONRPC(s)
	if rpcErr != nil {
		c.reject(id, rpcErr)
		return
	}

	method := methodOf(tree)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	decision, err := c.limiter.Check(ctx, c.connectionID, method)
	cancel()
	if err != nil {
		c.logger.Error("rate limit check failed", "connection_id", c.connectionID, "error", err)
	}
	if decision == ratelimit.Throttled {
		emitRateLimitExceeded(c.sink, c.connectionID, method)
		c.reject(id, &validation.RPCError{Code: validation.CodeInternalError, Message: "Rate limit exceeded"})
		return
	}

	outcome, err := c.sanitizer.SanitizeMessage(tree, mcp.ClientToServer)
	if err != nil {
		if errors.Is(err, validation.ErrRecursionTooDeep) {
			c.reject(id, &validation.RPCError{Code: validation.CodeInvalidRequest, Message: "Invalid JSON-RPC message"})
			return
		}
		c.logger.Error("sanitizing client message", "connection_id", c.connectionID, "error", err)
		c.reject(id, &validation.RPCError{Code: validation.CodeInternalError, Message: "Internal error"})
		return
	}
	emitForOutcome(c.sink, c.connectionID, outcome, mcp.ClientToServer)

	if !outcome.Safe {
		c.reject(id, &validation.RPCError{Code: validation.CodeInternalError, Message: "Message contains forbidden content"})
		return
	}

	// Send queues the message itself when the downstream connection isn't
	// up yet (reconnecting), up to max_queue_size.
	if err := c.downstream.Send(outcome.Message); err != nil {
		c.logger.Error("forwarding to downstream failed", "connection_id", c.connectionID, "error", err)
		c.reject(id, &validation.RPCError{Code: validation.CodeInternalError, Message: "MCP server not connected"})
	}
}

func (c *ClientLeg) reject(id json.RawMessage, rpcErr *validation.RPCError) {
	resp := validation.BuildErrorResponse(id, rpcErr)
	if err := c.out.WriteMessage(resp); err != nil {
		c.logger.Error("writing error response to client", "connection_id", c.connectionID, "error", err)
	}
}

// methodOf extracts the "method" field from a parsed JSON-RPC tree, or ""
// if tree isn't a request (responses and malformed input have none).
func methodOf(tree interface{}) string {
	obj, ok := tree.(map[string]interface{})
	if !ok {
		return ""
	}
	method, _ := obj["method"].(string)
	return method
}
