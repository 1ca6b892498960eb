package secret

import (
	"math"
	"strings"
)

// shannonEntropy computes H = -Σ p_i log2(p_i) over the empirical character
// distribution of s, in bits per character.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}

	var h float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

var commonExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".pdf",
	".doc", ".docx", ".txt", ".csv", ".json", ".xml",
}

var placeholderPrefixes = []string{"test", "demo", "example", "sample", "dummy", "fake"}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func isAllLower(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return false
		}
		if r >= 'a' && r <= 'z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func hasPlaceholderPrefix(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func hasCommonExtension(s string) bool {
	lower := strings.ToLower(s)
	for _, ext := range commonExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// isFalsePositive applies the spec §4.4 false-positive suppression rules to
// a raw match, after the minimum-length check has already passed.
// AWS-secret-shape matches bypass the shape-based tests (step 2) but are
// still subject to the entropy gate (step 3) since they are not hex-based.
func isFalsePositive(typeName, value string, minKeyLength int) bool {
	if len(value) < minKeyLength {
		return true
	}

	if typeName != "aws_secret_key" {
		if isAllDigits(value) || isAllUpper(value) || isAllLower(value) {
			return true
		}
		if hasPlaceholderPrefix(value) {
			return true
		}
		if hasCommonExtension(value) {
			return true
		}
	}

	if hexPatternNames[typeName] {
		return false
	}

	threshold, needsEntropyCheck := entropyThresholds[typeName]
	if !needsEntropyCheck {
		if strings.Contains(typeName, "generic") || strings.Contains(typeName, "potential") {
			threshold = defaultGenericEntropyThreshold
			needsEntropyCheck = true
		}
	}
	if needsEntropyCheck && shannonEntropy(value) < threshold {
		return true
	}

	return false
}
