// Package validation implements JSON-RPC structural validation and the
// Sanitizer orchestrator that walks arbitrary JSON trees through the
// sanitize and secret packages, direction-aware.
package validation

import "github.com/veilgate/veilgate/pkg/mcp"

// maxRecursionDepth bounds JSON tree walking; input exceeding this depth is
// treated as an invalid JSON-RPC message rather than risking a stack
// overflow on adversarial input.
const maxRecursionDepth = 128

// ViolationTag is a closed-ish set of sanitize/modification tags recorded on
// a SanitizeOutcome. New filters may add new tags.
type ViolationTag string

const (
	TagAnsiSequencesRemoved  ViolationTag = "ansi_sequences_removed"
	TagZeroWidthRemoved      ViolationTag = "zero_width_removed"
	TagControlRemoved        ViolationTag = "control_removed"
	TagUnicodeRemoved        ViolationTag = "unicode_removed"
	TagNonWhitelistedRemoved ViolationTag = "non_whitelisted_removed"
	TagSecretSubstituted     ViolationTag = "secret_substituted"
)

// SanitizeOutcome is the result of Sanitizer.SanitizeMessage.
type SanitizeOutcome struct {
	Safe          bool
	Modified      bool
	Message       interface{}
	Violations    []ViolationTag
	Modifications []ViolationTag
	HadSecrets    bool
}

// Direction re-exports mcp.Direction so callers of this package don't need
// a second import for the same concept.
type Direction = mcp.Direction

const (
	ClientToServer = mcp.ClientToServer
	ServerToClient = mcp.ServerToClient
)

// RPCError is a JSON-RPC 2.0 error object, used both for the client-visible
// error field and internally to describe validation failures.
type RPCError struct {
	Code    int
	Message string
}

// Standard JSON-RPC error codes the proxy emits, per spec §6.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeInternalError  = -32603
)
