// Package mcp provides MCP message types and JSON-RPC codec utilities
// for the veilgate proxy.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates the flow direction of a message through the proxy.
type Direction int

const (
	// ClientToServer indicates a message flowing from client to MCP server.
	ClientToServer Direction = iota
	// ServerToClient indicates a message flowing from MCP server to client.
	ServerToClient
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client->server"
	case ServerToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with proxy metadata.
// It stores both the raw bytes (for efficient passthrough) and the decoded
// message (for sanitization and rate-limit inspection).
type Message struct {
	// Raw contains the original bytes of the message.
	// Used for passthrough when no modification is needed.
	Raw []byte

	// Direction indicates whether this message is flowing from
	// client to server or server to client.
	Direction Direction

	// Decoded contains the parsed JSON-RPC message.
	// May be nil if parsing failed but passthrough is still desired.
	// The concrete type is either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received by the proxy.
	Timestamp time.Time

	// ConnectionID identifies the connection this message belongs to.
	// Set by the ClientLeg when the message is received.
	ConnectionID string

	// ParsedParams contains the parsed params from a JSON-RPC request.
	// Set by ParseParams() for reuse across interceptors.
	// Nil if not a request or parsing fails.
	ParsedParams map[string]interface{}
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse returns true if the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	if m.Decoded == nil {
		return ""
	}
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsToolCall returns true if this is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// Request returns the underlying Request if this is a request message.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response if this is a response message.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params and stores them in ParsedParams.
// Safe to call multiple times (no-op if already parsed).
func (m *Message) ParseParams() map[string]interface{} {
	if m.ParsedParams != nil {
		return m.ParsedParams
	}

	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}

	m.ParsedParams = params
	return params
}

// RawID extracts the request ID from the raw message bytes as json.RawMessage.
// The SDK's jsonrpc.ID type doesn't marshal correctly through interface{}, so
// the ID is read directly from the raw JSON instead.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}

	return raw["id"]
}
