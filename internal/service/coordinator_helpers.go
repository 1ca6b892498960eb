package service

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/veilgate/veilgate/internal/config"
	"github.com/veilgate/veilgate/internal/domain/ratelimit"
	"github.com/veilgate/veilgate/internal/domain/sanitize"
	"github.com/veilgate/veilgate/internal/domain/secret"
)

func toCodePointRanges(pairs []config.RangePair) []sanitize.CodePointRange {
	ranges := make([]sanitize.CodePointRange, 0, len(pairs))
	for _, p := range pairs {
		ranges = append(ranges, sanitize.CodePointRange{Lo: rune(p[0]), Hi: rune(p[1])})
	}
	return ranges
}

func toRunes(points []int) []rune {
	runes := make([]rune, 0, len(points))
	for _, p := range points {
		runes = append(runes, rune(p))
	}
	return runes
}

func toPerMethodScopes(cfg map[string]config.RateScopeConfig) map[string]ratelimit.ScopeConfig {
	if len(cfg) == 0 {
		return nil
	}
	scopes := make(map[string]ratelimit.ScopeConfig, len(cfg))
	for method, s := range cfg {
		scopes[method] = ratelimit.ScopeConfig{
			RequestsPerMinute: s.RequestsPerMinute,
			RequestsPerHour:   s.RequestsPerHour,
		}
	}
	return scopes
}

func compileCustomPatterns(patterns []config.CustomPatternConfig) ([]secret.PatternDef, error) {
	defs := make([]secret.PatternDef, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Name, err)
		}
		defs = append(defs, secret.PatternDef{Name: p.Name, Regex: re})
	}
	return defs, nil
}

// deriveProcessVaultKey generates a random per-process secret and derives
// the vault's AEAD key from it via scrypt (spec §4.5). The process secret
// itself is never stored; losing it (process restart) makes every prior
// placeholder unresolvable, which matches the "no persistent state across
// restarts" Non-goal.
func deriveProcessVaultKey() ([]byte, error) {
	processSecret := make([]byte, 32)
	if _, err := rand.Read(processSecret); err != nil {
		return nil, fmt.Errorf("generating process secret: %w", err)
	}
	return secret.DeriveKey(processSecret)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// splitCommandLine splits a subprocess command line on whitespace. It does
// not support quoting; mcp_server_url values needing quoted arguments
// should invoke a wrapper script instead.
func splitCommandLine(s string) (string, []string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("proxy.mcp_server_url is empty")
	}
	return fields[0], fields[1:], nil
}
