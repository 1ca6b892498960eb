// Package sanitize implements the layered string-level defenses that run
// over every JSON leaf crossing the proxy: ANSI/C1 control stripping,
// Unicode code-point whitelisting, and configurable pattern matching.
package sanitize

import "regexp"

// AnsiAction selects what AnsiFilter does with a detected escape sequence.
type AnsiAction string

const (
	// AnsiStrip removes detected sequences entirely. Default.
	AnsiStrip AnsiAction = "strip"
	// AnsiReject causes the filter to report the input as unsafe and
	// return an empty string.
	AnsiReject AnsiAction = "reject"
	// AnsiEncode replaces each escape byte with its visible textual form.
	AnsiEncode AnsiAction = "encode"
)

// Sequences recognized, in match order: CSI, OSC, DCS/PM/APC/SOS, save/restore
// cursor, and the 8-bit CSI introducer (0x9B). Matching structured sequences
// first keeps the output readable in encode mode; any residual ESC bytes are
// swept up afterward.
var (
	csiPattern       = regexp.MustCompile("\x1b\\[[0-?]*[ -/]*[@-~]")
	oscPattern       = regexp.MustCompile("\x1b\\][^\x07\x1b]*(\x07|\x1b\\\\)")
	dcsFamilyPattern = regexp.MustCompile("\x1b[PX^_][^\x1b]*\x1b\\\\")
	saveRestorePattern = regexp.MustCompile("\x1b[78]")
	c1CsiPattern     = regexp.MustCompile("\x9b[0-?]*[ -/]*[@-~]")
	residualEscPattern = regexp.MustCompile("[\x1b\x9b]")
)

// AnsiFilter detects and neutralizes ANSI/C1 terminal escape sequences.
type AnsiFilter struct {
	enabled bool
	action  AnsiAction
}

// NewAnsiFilter constructs a filter. An empty action defaults to AnsiStrip.
func NewAnsiFilter(enabled bool, action AnsiAction) *AnsiFilter {
	if action == "" {
		action = AnsiStrip
	}
	return &AnsiFilter{enabled: enabled, action: action}
}

// FilterResult is the outcome of running AnsiFilter.Filter.
type FilterResult struct {
	Out     string
	Removed bool
}

// Filter applies the configured action to s. Disabled filters are identity.
func (f *AnsiFilter) Filter(s string) FilterResult {
	if !f.enabled {
		return FilterResult{Out: s, Removed: false}
	}

	if !containsEscapeIntroducer(s) {
		return FilterResult{Out: s, Removed: false}
	}

	switch f.action {
	case AnsiReject:
		return FilterResult{Out: "", Removed: true}
	case AnsiEncode:
		out := encodeEscapes(s)
		return FilterResult{Out: out, Removed: out != s}
	default: // AnsiStrip
		out := stripEscapes(s)
		return FilterResult{Out: out, Removed: out != s}
	}
}

func containsEscapeIntroducer(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b || s[i] == 0x9b {
			return true
		}
	}
	return false
}

func stripEscapes(s string) string {
	s = csiPattern.ReplaceAllString(s, "")
	s = oscPattern.ReplaceAllString(s, "")
	s = dcsFamilyPattern.ReplaceAllString(s, "")
	s = saveRestorePattern.ReplaceAllString(s, "")
	s = c1CsiPattern.ReplaceAllString(s, "")
	// Residual ESC/C1 bytes that weren't part of a recognized structured
	// sequence must still be removed.
	s = residualEscPattern.ReplaceAllString(s, "")
	return s
}

func encodeEscapes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 0x1b:
			out = append(out, []byte(`\x1b`)...)
		case 0x9b:
			out = append(out, []byte(`\x9b`)...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
