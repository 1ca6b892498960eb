// Package secret implements credential detection (SecretDetector) and the
// per-connection vault that substitutes detected credentials with opaque
// placeholders.
package secret

import "regexp"

// PatternDef names one entry in the built-in credential catalog.
type PatternDef struct {
	Name  string
	Regex *regexp.Regexp
}

// builtinCatalog is the fixed set of named patterns for common credential
// shapes. This list MUST be kept byte-identical in structure to the spec's
// catalog so detection behavior is reproducible across implementations.
var builtinCatalog = []PatternDef{
	{"openai_api_key", regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`)},
	{"openai_project_key", regexp.MustCompile(`\bsk-proj-[A-Za-z0-9_-]{20,}\b`)},
	{"anthropic_api_key", regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{95,100}\b`)},
	{"aws_access_key_id", regexp.MustCompile(`\b(AKIA|ABIA|ACCA)[A-Z0-9]{16}\b`)},
	{"aws_secret_key", regexp.MustCompile(`\b[A-Za-z0-9/+=]{40}\b`)},
	{"github_token", regexp.MustCompile(`\b(ghp_|gho_|ghu_|ghs_|ghr_|github_pat_)[A-Za-z0-9_]{36,255}\b`)},
	{"google_api_key", regexp.MustCompile(`\bAIza[A-Za-z0-9_-]{35}\b`)},
	{"slack_token", regexp.MustCompile(`\bxox(b|p|r|a)-[A-Za-z0-9-]{10,72}\b`)},
	{"stripe_key", regexp.MustCompile(`\b(sk|pk|rk)_(live|test)_[A-Za-z0-9]{99}\b`)},
	{"sendgrid_key", regexp.MustCompile(`\bSG\.[A-Za-z0-9_-]{22}\.[A-Za-z0-9_-]{43}\b`)},
	{"twilio_sid_key", regexp.MustCompile(`\bSK[0-9a-fA-F]{32}\b`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)},
	{"discord_bot_token", regexp.MustCompile(`\b[MN][A-Za-z0-9_-]{23,25}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,38}\b`)},
	{"discord_webhook", regexp.MustCompile(`\bhttps://discord(?:app)?\.com/api/webhooks/\d+/[A-Za-z0-9_-]+\b`)},
	{"gitlab_token", regexp.MustCompile(`\b(glpat-|glcbt-)[A-Za-z0-9_-]{20,}\b`)},
	{"dockerhub_token", regexp.MustCompile(`\b(dckr_pat_|dckr_oat_)[A-Za-z0-9_-]{20,}\b`)},
	{"npm_token", regexp.MustCompile(`\bnpm_[A-Za-z0-9]{36}\b`)},
	{"doppler_token", regexp.MustCompile(`\bdp\.(ct|pt|st|scim)\.[A-Za-z0-9]{40,}\b`)},
	{"database_uri_password", regexp.MustCompile(`\b[a-z][a-z0-9+.-]*://[^:/\s]+:([^@/\s]+)@[^/\s]+`)},
	// Datadog family: hex-based, skips entropy and letter-case tests.
	{"datadog_api_key", regexp.MustCompile(`\b[a-f0-9]{32}\b`)},
	{"datadog_app_key", regexp.MustCompile(`\b[a-f0-9]{40}\b`)},
}

// hexPatternNames are the catalog entries that skip entropy and
// letter-case false-positive tests, per spec §4.4.
var hexPatternNames = map[string]bool{
	"datadog_api_key": true,
	"datadog_app_key": true,
}

// entropyThresholds gives the per-type Shannon entropy cutoff (bits/char)
// for patterns that require entropy gating.
var entropyThresholds = map[string]float64{
	"aws_access_key_id":     2.5,
	"aws_secret_key":        3.0,
	"github_token":          3.0,
	"openai_api_key":        3.0,
	"openai_project_key":    3.0,
	"anthropic_api_key":     3.5,
	"generic_api_key":       3.0,
	"generic_secret":        3.0,
}

// defaultGenericEntropyThreshold applies to any pattern whose name contains
// "generic" or "potential" that isn't explicitly listed above.
const defaultGenericEntropyThreshold = 3.0
