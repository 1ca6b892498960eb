package validation

import (
	"context"
	"errors"

	"github.com/veilgate/veilgate/internal/domain/sanitize"
	"github.com/veilgate/veilgate/internal/domain/secret"
	"github.com/veilgate/veilgate/internal/port/outbound"
)

// ErrRecursionTooDeep is returned when a JSON tree exceeds maxRecursionDepth.
// Per spec §9, callers MUST treat this as an invalid JSON-RPC message.
var ErrRecursionTooDeep = errors.New("validation: JSON structure exceeds maximum recursion depth")

// Sanitizer is the per-connection orchestrator described in spec §4.6. It
// owns an AnsiFilter, CharacterWhitelist, PatternMatcher, SecretDetector,
// and the shared SecretVault scoped by this Sanitizer's connection id.
type Sanitizer struct {
	connectionID string

	ansi      *sanitize.AnsiFilter
	whitelist *sanitize.CharacterWhitelist
	patterns  *sanitize.PatternMatcher
	detector  *secret.Detector
	vault     *secret.Vault

	strictMode      bool
	secretsEnabled  bool

	ctx    context.Context
	tracer outbound.Tracer
}

// Config parameterizes a Sanitizer's shared, read-only filters plus the two
// per-connection behavior flags.
type Config struct {
	Ansi           *sanitize.AnsiFilter
	Whitelist      *sanitize.CharacterWhitelist
	Patterns       *sanitize.PatternMatcher
	Detector       *secret.Detector
	Vault          *secret.Vault
	StrictMode     bool
	SecretsEnabled bool

	// Ctx is the connection's long-lived context, used only as the span
	// parent for Tracer. Not used for cancellation — SanitizeMessage is
	// synchronous and doesn't itself block on I/O.
	Ctx    context.Context
	Tracer outbound.Tracer
}

// NewSanitizer constructs a Sanitizer for one connection. The filters and
// detector are shared, read-only, process-wide objects; the vault is a
// shared, connection-scoping store.
func NewSanitizer(connectionID string, cfg Config) *Sanitizer {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = outbound.NopTracer{}
	}
	ctx := cfg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return &Sanitizer{
		connectionID:   connectionID,
		ansi:           cfg.Ansi,
		whitelist:      cfg.Whitelist,
		patterns:       cfg.Patterns,
		detector:       cfg.Detector,
		vault:          cfg.Vault,
		strictMode:     cfg.StrictMode,
		secretsEnabled: cfg.SecretsEnabled,
		ctx:            ctx,
		tracer:         tracer,
	}
}

// SanitizeMessage runs the full §4.6.1 pipeline over msg. direction gates
// whether step 1 (secret substitution) runs at all — it never runs on
// ServerToClient traffic, satisfying invariant 7 (no outbound secret
// exposure).
func (s *Sanitizer) SanitizeMessage(msg interface{}, direction Direction) (outcome SanitizeOutcome, err error) {
	end := s.tracer.StartSpan(s.ctx, s.connectionID, direction.String())
	defer func() { end(len(outcome.Violations), err) }()

	outcome = SanitizeOutcome{Safe: true, Message: msg}

	working := msg
	if direction == ClientToServer && s.secretsEnabled {
		substituted, hadSecrets, err := s.substituteSecrets(working, 0)
		if err != nil {
			return outcome, err
		}
		working = substituted
		outcome.HadSecrets = hadSecrets
		if hadSecrets {
			outcome.Modified = true
			outcome.Modifications = append(outcome.Modifications, TagSecretSubstituted)
		}
	}

	sanitized, violations, modifications, modified, err := s.deepSanitize(working, 0)
	if err != nil {
		return outcome, err
	}

	outcome.Message = sanitized
	outcome.Violations = append(outcome.Violations, violations...)
	outcome.Modifications = append(outcome.Modifications, modifications...)
	if modified {
		outcome.Modified = true
	}

	outcome.Safe = len(outcome.Violations) == 0 || !s.strictMode

	return outcome, nil
}

// substituteSecrets walks working, detecting and vault-storing credentials
// found in string leaves. Non-string leaves pass through unchanged. Only
// invoked for ClientToServer traffic — it MUST NOT be reachable from
// ServerToClient (invariant 7).
func (s *Sanitizer) substituteSecrets(node interface{}, depth int) (interface{}, bool, error) {
	if depth > maxRecursionDepth {
		return nil, false, ErrRecursionTooDeep
	}

	switch v := node.(type) {
	case string:
		hadSecrets := false
		out := s.detector.Replace(v, func(value, typ string) string {
			placeholder, err := s.vault.Store(value, s.connectionID, typ)
			if err != nil {
				// Vault errors fail closed: the plaintext is never passed
				// through as a fallback (spec §7 Vault errors).
				return value
			}
			hadSecrets = true
			return placeholder
		})
		return out, hadSecrets, nil

	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		anySecret := false
		for k, val := range v {
			sub, had, err := s.substituteSecrets(val, depth+1)
			if err != nil {
				return nil, false, err
			}
			if had {
				anySecret = true
			}
			out[k] = sub
		}
		return out, anySecret, nil

	case []interface{}:
		out := make([]interface{}, len(v))
		anySecret := false
		for i, val := range v {
			sub, had, err := s.substituteSecrets(val, depth+1)
			if err != nil {
				return nil, false, err
			}
			if had {
				anySecret = true
			}
			out[i] = sub
		}
		return out, anySecret, nil

	default:
		return v, false, nil
	}
}

// deepSanitize walks node applying AnsiFilter -> CharacterWhitelist ->
// PatternMatcher to every string leaf and every object key, in that order,
// per spec §4.6.1 step 2. A key reduced to empty by filtering drops its
// entire entry.
func (s *Sanitizer) deepSanitize(node interface{}, depth int) (interface{}, []ViolationTag, []ViolationTag, bool, error) {
	if depth > maxRecursionDepth {
		return nil, nil, nil, false, ErrRecursionTooDeep
	}

	switch v := node.(type) {
	case string:
		out, violations, mods := s.sanitizeString(v)
		return out, violations, mods, out != v, nil

	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		var violations, mods []ViolationTag
		modified := false

		for k, val := range v {
			cleanKey, keyViolations, keyMods := s.sanitizeString(k)
			violations = append(violations, keyViolations...)
			mods = append(mods, keyMods...)
			if cleanKey != k {
				modified = true
			}
			if cleanKey == "" {
				continue
			}

			cleanVal, valViolations, valMods, valModified, err := s.deepSanitize(val, depth+1)
			if err != nil {
				return nil, nil, nil, false, err
			}
			violations = append(violations, valViolations...)
			mods = append(mods, valMods...)
			if valModified {
				modified = true
			}
			out[cleanKey] = cleanVal
		}
		return out, violations, mods, modified, nil

	case []interface{}:
		out := make([]interface{}, len(v))
		var violations, mods []ViolationTag
		modified := false

		for i, val := range v {
			cleanVal, valViolations, valMods, valModified, err := s.deepSanitize(val, depth+1)
			if err != nil {
				return nil, nil, nil, false, err
			}
			violations = append(violations, valViolations...)
			mods = append(mods, valMods...)
			if valModified {
				modified = true
			}
			out[i] = cleanVal
		}
		return out, violations, mods, modified, nil

	default:
		return v, nil, nil, false, nil
	}
}

func (s *Sanitizer) sanitizeString(in string) (string, []ViolationTag, []ViolationTag) {
	var violations, mods []ViolationTag

	out := in
	if s.ansi != nil {
		r := s.ansi.Filter(out)
		if r.Removed {
			violations = append(violations, TagAnsiSequencesRemoved)
			mods = append(mods, TagAnsiSequencesRemoved)
		}
		out = r.Out
	}

	if s.whitelist != nil {
		r := s.whitelist.Filter(out)
		for tag := range r.Violations {
			violations = append(violations, violationFromWhitelistTag(tag))
		}
		if r.Out != out {
			mods = append(mods, TagNonWhitelistedRemoved)
		}
		out = r.Out
	}

	if s.patterns != nil {
		r := s.patterns.Check(out, "")
		for _, m := range r.Matches {
			violations = append(violations, ViolationTag(m.Name))
		}
		if !r.Allowed {
			// Rejections still report the original text upward; the
			// caller (ClientLeg) decides whether to drop the message
			// based on strict_mode and the violations list.
			return out, violations, mods
		}
		out = r.Sanitized
	}

	return out, violations, mods
}

func violationFromWhitelistTag(tag sanitize.WhitelistTag) ViolationTag {
	switch tag {
	case sanitize.TagZeroWidthRemoved:
		return TagZeroWidthRemoved
	case sanitize.TagControlRemoved:
		return TagControlRemoved
	case sanitize.TagUnicodeRemoved:
		return TagUnicodeRemoved
	default:
		return TagNonWhitelistedRemoved
	}
}

// Resubstitute walks msg replacing vault placeholders owned by this
// connection with their original secrets. Applied by the outbound leg
// immediately before sending to the downstream server (§4.6.2).
func (s *Sanitizer) Resubstitute(msg interface{}) (interface{}, bool) {
	return s.resubstitute(msg, 0)
}

func (s *Sanitizer) resubstitute(node interface{}, depth int) (interface{}, bool) {
	if depth > maxRecursionDepth {
		return node, false
	}

	switch v := node.(type) {
	case string:
		return s.resubstituteString(v)

	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		modified := false
		for k, val := range v {
			sub, changed := s.resubstitute(val, depth+1)
			if changed {
				modified = true
			}
			out[k] = sub
		}
		return out, modified

	case []interface{}:
		out := make([]interface{}, len(v))
		modified := false
		for i, val := range v {
			sub, changed := s.resubstitute(val, depth+1)
			if changed {
				modified = true
			}
			out[i] = sub
		}
		return out, modified

	default:
		return v, false
	}
}

func (s *Sanitizer) resubstituteString(in string) (string, bool) {
	if s.vault.IsPlaceholder(in) {
		if original, ok := s.vault.Retrieve(in, s.connectionID); ok {
			return original, true
		}
		return in, false
	}

	matches := secret.PlaceholderPattern.FindAllString(in, -1)
	if len(matches) == 0 {
		return in, false
	}

	modified := false
	out := secret.PlaceholderPattern.ReplaceAllStringFunc(in, func(placeholder string) string {
		if original, ok := s.vault.Retrieve(placeholder, s.connectionID); ok {
			modified = true
			return original
		}
		// Unowned or expired placeholders are left as literal text.
		return placeholder
	})
	return out, modified
}

// Cleanup removes this connection's vault records, invoked on teardown.
func (s *Sanitizer) Cleanup() {
	s.vault.RemoveAll(s.connectionID)
}
