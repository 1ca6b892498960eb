package validation

import (
	"encoding/json"
	"unicode/utf8"
)

// DecodeFrame validates that raw is well-formed UTF-8 and returns it as a
// string. Spec §4.8 step 1: a transport frame that isn't valid UTF-8 is a
// parse error.
func DecodeFrame(raw []byte) (string, *RPCError) {
	if !utf8.Valid(raw) {
		return "", &RPCError{Code: CodeParseError, Message: "Invalid JSON format"}
	}
	return string(raw), nil
}

// envelope is the minimal shape needed to validate JSON-RPC structure
// without committing to the full jsonrpc.Message decode, so that malformed
// input can still surface a well-formed error response with the original id
// when recoverable.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  *string         `json:"method"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// ParseJSON parses s into a generic JSON value, used both for envelope
// validation and for the deep-walk the Sanitizer performs.
func ParseJSON(s string) (interface{}, *RPCError) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, &RPCError{Code: CodeParseError, Message: "Invalid JSON format"}
	}
	return v, nil
}

// ValidateJSONRPC checks spec §4.8 step 3: jsonrpc must be "2.0"; if method
// is present it must be a string; if there is no method, the message must
// carry a result or an error. Returns the envelope's raw id (for error
// correlation) alongside any validation failure.
func ValidateJSONRPC(s string) (id json.RawMessage, rpcErr *RPCError) {
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, &RPCError{Code: CodeInvalidRequest, Message: "Invalid JSON-RPC message"}
	}

	if env.JSONRPC != "2.0" {
		return env.ID, &RPCError{Code: CodeInvalidRequest, Message: "Invalid JSON-RPC message"}
	}

	if env.Method == nil {
		if env.Result == nil && env.Error == nil {
			return env.ID, &RPCError{Code: CodeInvalidRequest, Message: "Invalid JSON-RPC message"}
		}
	}

	return env.ID, nil
}

// BuildErrorResponse constructs the JSON-RPC error envelope the proxy
// returns to a client, per spec §6. A nil id is sent as JSON null, matching
// spec.md's example responses.
func BuildErrorResponse(id json.RawMessage, rpcErr *RPCError) []byte {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	type errObj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	type response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   errObj          `json:"error"`
	}

	resp := response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   errObj{Code: rpcErr.Code, Message: rpcErr.Message},
	}

	out, err := json.Marshal(resp)
	if err != nil {
		// Marshaling a struct of concrete types cannot fail; this branch
		// exists only to satisfy the error-handling convention.
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`)
	}
	return out
}
