package proxy

import (
	"encoding/json"
	"time"

	"github.com/veilgate/veilgate/internal/domain/secevent"
	"github.com/veilgate/veilgate/internal/domain/validation"
	"github.com/veilgate/veilgate/pkg/mcp"
)

// emitForOutcome translates a Sanitizer outcome into the security events
// spec §6 defines, and sends them to sink. Both legs share this so a
// sanitization decision is reported identically regardless of direction.
func emitForOutcome(sink secevent.Sink, connectionID string, outcome validation.SanitizeOutcome, direction validation.Direction) {
	if sink == nil {
		return
	}

	if outcome.HadSecrets {
		details := map[string]interface{}{"direction": direction.String()}
		if tool := toolCallName(outcome.Message, direction); tool != "" {
			details["tool"] = tool
		}
		sink.Emit(secevent.Event{
			Kind:         secevent.KindSecretSubstituted,
			ConnectionID: connectionID,
			Timestamp:    time.Now(),
			Details:      details,
		})
	}

	if len(outcome.Violations) == 0 {
		return
	}

	tags := make([]string, 0, len(outcome.Violations))
	for _, v := range outcome.Violations {
		tags = append(tags, string(v))
	}

	kind := secevent.KindPatternMatch
	if !outcome.Safe {
		kind = secevent.KindSanitizationBlocked
	}

	details := map[string]interface{}{
		"direction":  direction.String(),
		"violations": tags,
	}
	if tool := toolCallName(outcome.Message, direction); tool != "" {
		details["tool"] = tool
	}

	sink.Emit(secevent.Event{
		Kind:         kind,
		ConnectionID: connectionID,
		Timestamp:    time.Now(),
		Details:      details,
	})
}

// toolCallName best-effort identifies the tool name driving a security
// event, so an auditor reviewing secret-substitution or sanitization-block
// events doesn't have to cross-reference the connection's raw traffic to
// learn which tool call triggered it. tree may be any shape the sanitizer
// produces; messages that aren't a tools/call request (or that the MCP
// SDK's stricter JSON-RPC decode rejects, e.g. notifications) yield "".
func toolCallName(tree interface{}, direction validation.Direction) string {
	raw, err := json.Marshal(tree)
	if err != nil {
		return ""
	}
	msg, err := mcp.WrapMessage(raw, direction)
	if err != nil || !msg.IsToolCall() {
		return ""
	}
	params := msg.ParseParams()
	name, _ := params["name"].(string)
	return name
}

func emitRateLimitExceeded(sink secevent.Sink, connectionID, method string) {
	if sink == nil {
		return
	}
	sink.Emit(secevent.Event{
		Kind:         secevent.KindRateLimitExceeded,
		ConnectionID: connectionID,
		Timestamp:    time.Now(),
		Details:      map[string]interface{}{"method": method},
	})
}
