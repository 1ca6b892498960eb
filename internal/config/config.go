// Package config provides configuration types for the veilgate proxy.
//
// The schema follows spec §6's recognized option namespaces exactly:
// sanitization.*, api_key_protection.*, rate_limiting.*, proxy.*. Unlike the
// OSS config this was adapted from, there is no auth/policy/HTTP-gateway
// surface — this proxy enforces content sanitization and rate limiting, not
// identity or routing policy.
package config

// Config is the top-level veilgate configuration.
type Config struct {
	Sanitization     SanitizationConfig     `yaml:"sanitization" mapstructure:"sanitization"`
	APIKeyProtection APIKeyProtectionConfig `yaml:"api_key_protection" mapstructure:"api_key_protection"`
	RateLimiting     RateLimitingConfig     `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Proxy            ProxyConfig            `yaml:"proxy" mapstructure:"proxy"`

	// LogLevel sets the minimum log level ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables verbose logging and relaxed defaults.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// AnsiEscapesConfig configures the AnsiFilter (spec §4.1).
type AnsiEscapesConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Action  string `yaml:"action" mapstructure:"action" validate:"omitempty,oneof=strip reject encode"`
}

// RangePair is an inclusive [lo, hi] Unicode code-point range.
type RangePair [2]int

// CharacterWhitelistConfig configures the CharacterWhitelist (spec §4.2).
type CharacterWhitelistConfig struct {
	Enabled       bool        `yaml:"enabled" mapstructure:"enabled"`
	AllowedRanges []RangePair `yaml:"allowed_ranges" mapstructure:"allowed_ranges"`
	Blacklist     []int       `yaml:"blacklist" mapstructure:"blacklist"`
}

// PatternRuleConfig is one configured PatternMatcher rule (spec §4.3).
type PatternRuleConfig struct {
	Name     string `yaml:"name" mapstructure:"name" validate:"required"`
	Pattern  string `yaml:"pattern" mapstructure:"pattern" validate:"required"`
	Action   string `yaml:"action" mapstructure:"action" validate:"required,oneof=reject strip log"`
	Severity string `yaml:"severity" mapstructure:"severity"`
	When     string `yaml:"when" mapstructure:"when"`
}

// PatternsConfig configures the PatternMatcher.
type PatternsConfig struct {
	Enabled bool                `yaml:"enabled" mapstructure:"enabled"`
	Rules   []PatternRuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
}

// ToolNameFieldConfig constrains the tool_name field during validation.
type ToolNameFieldConfig struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
}

// ToolParamsFieldConfig constrains tool_params during validation.
type ToolParamsFieldConfig struct {
	StripHTML    bool `yaml:"strip_html" mapstructure:"strip_html"`
	StripScripts bool `yaml:"strip_scripts" mapstructure:"strip_scripts"`
}

// ValidationFieldsConfig groups per-field structural constraints.
type ValidationFieldsConfig struct {
	ToolName   ToolNameFieldConfig   `yaml:"tool_name" mapstructure:"tool_name"`
	ToolParams ToolParamsFieldConfig `yaml:"tool_params" mapstructure:"tool_params"`
}

// ValidationConfig bounds message and field sizes (spec §6).
type ValidationConfig struct {
	MaxMessageSize       int                    `yaml:"max_message_size" mapstructure:"max_message_size" validate:"omitempty,min=1"`
	MaxPromptLength      int                    `yaml:"max_prompt_length" mapstructure:"max_prompt_length" validate:"omitempty,min=1"`
	MaxToolNameLength    int                    `yaml:"max_tool_name_length" mapstructure:"max_tool_name_length" validate:"omitempty,min=1"`
	MaxParamValueLength  int                    `yaml:"max_param_value_length" mapstructure:"max_param_value_length" validate:"omitempty,min=1"`
	Fields               ValidationFieldsConfig `yaml:"fields" mapstructure:"fields"`
}

// SanitizationConfig groups every sanitization.* option.
type SanitizationConfig struct {
	AnsiEscapes        AnsiEscapesConfig        `yaml:"ansi_escapes" mapstructure:"ansi_escapes"`
	CharacterWhitelist CharacterWhitelistConfig `yaml:"character_whitelist" mapstructure:"character_whitelist"`
	Patterns           PatternsConfig           `yaml:"patterns" mapstructure:"patterns"`
	StrictMode         bool                     `yaml:"strict_mode" mapstructure:"strict_mode"`
	Validation         ValidationConfig         `yaml:"validation" mapstructure:"validation"`
}

// CustomPatternConfig is a user-supplied secret pattern.
type CustomPatternConfig struct {
	Name    string `yaml:"name" mapstructure:"name" validate:"required"`
	Pattern string `yaml:"pattern" mapstructure:"pattern" validate:"required"`
}

// DetectionConfig configures SecretDetector construction (spec §4.4).
type DetectionConfig struct {
	BuiltinPatterns  bool                  `yaml:"builtin_patterns" mapstructure:"builtin_patterns"`
	CustomPatterns   []CustomPatternConfig `yaml:"custom_patterns" mapstructure:"custom_patterns" validate:"omitempty,dive"`
	MinimumKeyLength int                   `yaml:"minimum_key_length" mapstructure:"minimum_key_length" validate:"omitempty,min=1"`
}

// StorageConfig configures the SecretVault (spec §4.5).
type StorageConfig struct {
	Encryption           bool   `yaml:"encryption" mapstructure:"encryption"`
	TTL                  string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty"`
	MaxKeysPerConnection int    `yaml:"max_keys_per_connection" mapstructure:"max_keys_per_connection" validate:"omitempty,min=1"`
}

// APIKeyProtectionConfig groups every api_key_protection.* option.
type APIKeyProtectionConfig struct {
	Enabled   bool            `yaml:"enabled" mapstructure:"enabled"`
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
}

// RateScopeConfig configures one rate-limiting scope.
type RateScopeConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute" validate:"omitempty,min=0"`
	RequestsPerHour   int `yaml:"requests_per_hour" mapstructure:"requests_per_hour" validate:"omitempty,min=0"`
}

// RateLimitingConfig groups every rate_limiting.* option.
type RateLimitingConfig struct {
	Enabled   bool                       `yaml:"enabled" mapstructure:"enabled"`
	Global    RateScopeConfig            `yaml:"global" mapstructure:"global"`
	PerClient RateScopeConfig            `yaml:"per_client" mapstructure:"per_client"`
	PerMethod map[string]RateScopeConfig `yaml:"per_method" mapstructure:"per_method"`
}

// ProxyConfig groups every proxy.* option.
type ProxyConfig struct {
	Port              int    `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Host              string `yaml:"host" mapstructure:"host"`
	MCPServerURL      string `yaml:"mcp_server_url" mapstructure:"mcp_server_url"`
	MaxConnections    int    `yaml:"max_connections" mapstructure:"max_connections" validate:"omitempty,min=1"`
	MaxMessageSize    int    `yaml:"max_message_size" mapstructure:"max_message_size" validate:"omitempty,min=1"`
	MaxQueueSize      int    `yaml:"max_queue_size" mapstructure:"max_queue_size" validate:"omitempty,min=1"`
	ConnectionTimeout string `yaml:"connection_timeout" mapstructure:"connection_timeout" validate:"omitempty"`
	AutoReconnect     bool   `yaml:"auto_reconnect" mapstructure:"auto_reconnect"`
}

// SetDefaults fills in spec-mandated and otherwise sensible defaults. Zero
// values for booleans the spec treats as security-relevant ("on by
// default") are applied only when the key was never set at all — see
// loader.go's use of viper.IsSet around this call.
func (c *Config) SetDefaults(explicitlySet func(key string) bool) {
	if c.Sanitization.AnsiEscapes.Action == "" {
		c.Sanitization.AnsiEscapes.Action = "strip"
	}
	if !explicitlySet("sanitization.ansi_escapes.enabled") {
		c.Sanitization.AnsiEscapes.Enabled = true
	}
	if !explicitlySet("sanitization.character_whitelist.enabled") {
		c.Sanitization.CharacterWhitelist.Enabled = true
	}
	if !explicitlySet("sanitization.patterns.enabled") {
		c.Sanitization.Patterns.Enabled = true
	}
	if !explicitlySet("sanitization.strict_mode") {
		c.Sanitization.StrictMode = true
	}
	if c.Sanitization.Validation.MaxMessageSize == 0 {
		c.Sanitization.Validation.MaxMessageSize = 1024 * 1024
	}
	if c.Sanitization.Validation.MaxPromptLength == 0 {
		c.Sanitization.Validation.MaxPromptLength = 100_000
	}
	if c.Sanitization.Validation.MaxToolNameLength == 0 {
		c.Sanitization.Validation.MaxToolNameLength = 256
	}
	if c.Sanitization.Validation.MaxParamValueLength == 0 {
		c.Sanitization.Validation.MaxParamValueLength = 65536
	}

	if !explicitlySet("api_key_protection.enabled") {
		c.APIKeyProtection.Enabled = true
	}
	if !explicitlySet("api_key_protection.detection.builtin_patterns") {
		c.APIKeyProtection.Detection.BuiltinPatterns = true
	}
	if c.APIKeyProtection.Detection.MinimumKeyLength == 0 {
		c.APIKeyProtection.Detection.MinimumKeyLength = 20
	}
	if !explicitlySet("api_key_protection.storage.encryption") {
		c.APIKeyProtection.Storage.Encryption = true
	}
	if c.APIKeyProtection.Storage.TTL == "" {
		c.APIKeyProtection.Storage.TTL = "1h"
	}
	if c.APIKeyProtection.Storage.MaxKeysPerConnection == 0 {
		c.APIKeyProtection.Storage.MaxKeysPerConnection = 100
	}

	if !explicitlySet("rate_limiting.enabled") {
		c.RateLimiting.Enabled = true
	}
	if c.RateLimiting.Global.RequestsPerMinute == 0 {
		c.RateLimiting.Global.RequestsPerMinute = 1000
	}
	if c.RateLimiting.Global.RequestsPerHour == 0 {
		c.RateLimiting.Global.RequestsPerHour = 20000
	}
	if c.RateLimiting.PerClient.RequestsPerMinute == 0 {
		c.RateLimiting.PerClient.RequestsPerMinute = 60
	}
	if c.RateLimiting.PerClient.RequestsPerHour == 0 {
		c.RateLimiting.PerClient.RequestsPerHour = 1000
	}

	if c.Proxy.Port == 0 {
		c.Proxy.Port = 8585
	}
	if c.Proxy.Host == "" {
		c.Proxy.Host = "127.0.0.1"
	}
	if c.Proxy.MaxConnections == 0 {
		c.Proxy.MaxConnections = 100
	}
	if c.Proxy.MaxMessageSize == 0 {
		c.Proxy.MaxMessageSize = 1024 * 1024
	}
	if c.Proxy.MaxQueueSize == 0 {
		c.Proxy.MaxQueueSize = 100
	}
	if c.Proxy.ConnectionTimeout == "" {
		c.Proxy.ConnectionTimeout = "30s"
	}
	if !explicitlySet("proxy.auto_reconnect") {
		c.Proxy.AutoReconnect = true
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
