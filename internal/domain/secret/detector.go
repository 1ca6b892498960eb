package secret

import "regexp"

// DefaultMinKeyLength is the default minimum length (§4.4 step 1) below
// which a raw match is discarded regardless of shape or entropy.
const DefaultMinKeyLength = 20

// Finding is one detected credential-shaped substring.
type Finding struct {
	Value  string
	Type   string
	Offset int
	Length int
}

// DetectorConfig parameterizes a Detector.
type DetectorConfig struct {
	MinKeyLength   int
	CustomPatterns []PatternDef
	// DisableBuiltins omits the built-in credential catalog, leaving only
	// CustomPatterns. Used when api_key_protection.detection.builtin_patterns
	// is configured false.
	DisableBuiltins bool
}

// Detector finds credential-shaped substrings via the built-in pattern
// catalog plus any custom patterns, gated by the false-positive suppression
// rules in spec §4.4.
type Detector struct {
	patterns     []PatternDef
	minKeyLength int
}

// NewDetector constructs a Detector. Custom patterns are appended after the
// built-in catalog and checked in the same way.
func NewDetector(cfg DetectorConfig) *Detector {
	minLen := cfg.MinKeyLength
	if minLen <= 0 {
		minLen = DefaultMinKeyLength
	}

	patterns := make([]PatternDef, 0, len(builtinCatalog)+len(cfg.CustomPatterns))
	if !cfg.DisableBuiltins {
		patterns = append(patterns, builtinCatalog...)
	}
	patterns = append(patterns, cfg.CustomPatterns...)

	return &Detector{patterns: patterns, minKeyLength: minLen}
}

// Detect scans s for credential-shaped substrings. Identical matched
// substrings within a single call are reported once (first occurrence kept).
func (d *Detector) Detect(s string) []Finding {
	var findings []Finding
	seen := make(map[string]bool)

	for _, pat := range d.patterns {
		for _, loc := range pat.Regex.FindAllStringIndex(s, -1) {
			value := s[loc[0]:loc[1]]
			if seen[value] {
				continue
			}
			if isFalsePositive(pat.Name, value, d.minKeyLength) {
				continue
			}
			seen[value] = true
			findings = append(findings, Finding{
				Value:  value,
				Type:   pat.Name,
				Offset: loc[0],
				Length: loc[1] - loc[0],
			})
		}
	}

	return findings
}

// Replace scans s for credential-shaped substrings and replaces each with
// the value f returns for it. Findings are processed right-to-left so
// earlier offsets remain valid as replacements change the string length.
func (d *Detector) Replace(s string, f func(value, typ string) string) string {
	findings := d.Detect(s)
	if len(findings) == 0 {
		return s
	}

	// Map every occurrence of each distinct finding value back to its
	// offsets so repeated secrets in one string all get substituted.
	type occurrence struct {
		start, end int
		value      string
		typ        string
	}

	var occurrences []occurrence
	for _, fnd := range findings {
		re := regexp.MustCompile(regexp.QuoteMeta(fnd.Value))
		for _, loc := range re.FindAllStringIndex(s, -1) {
			occurrences = append(occurrences, occurrence{loc[0], loc[1], fnd.Value, fnd.Type})
		}
	}

	// Sort descending by start offset so replacement doesn't invalidate
	// subsequent offsets.
	for i := 0; i < len(occurrences); i++ {
		for j := i + 1; j < len(occurrences); j++ {
			if occurrences[j].start > occurrences[i].start {
				occurrences[i], occurrences[j] = occurrences[j], occurrences[i]
			}
		}
	}

	out := s
	for _, occ := range occurrences {
		placeholder := f(occ.value, occ.typ)
		out = out[:occ.start] + placeholder + out[occ.end:]
	}
	return out
}
