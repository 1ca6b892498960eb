package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for veilgate.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("veilgate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: VEILGATE_PROXY_PORT, VEILGATE_RATE_LIMITING_ENABLED, ...
	viper.SetEnvPrefix("VEILGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a veilgate config file with
// an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "veilgate" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".veilgate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "veilgate"))
		}
	} else {
		paths = append(paths, "/etc/veilgate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for veilgate.yaml or
// .yml. Returns the full path of the first match, or "" if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "veilgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every leaf key of Config for environment variable
// support. Example: VEILGATE_PROXY_PORT overrides proxy.port.
func bindNestedEnvKeys() {
	// Sanitization
	_ = viper.BindEnv("sanitization.ansi_escapes.enabled")
	_ = viper.BindEnv("sanitization.ansi_escapes.action")
	_ = viper.BindEnv("sanitization.character_whitelist.enabled")
	// Note: character_whitelist.allowed_ranges/blacklist are arrays; use a config file.
	_ = viper.BindEnv("sanitization.patterns.enabled")
	// Note: patterns.rules is an array of objects; use a config file.
	_ = viper.BindEnv("sanitization.strict_mode")
	_ = viper.BindEnv("sanitization.validation.max_message_size")
	_ = viper.BindEnv("sanitization.validation.max_prompt_length")
	_ = viper.BindEnv("sanitization.validation.max_tool_name_length")
	_ = viper.BindEnv("sanitization.validation.max_param_value_length")
	_ = viper.BindEnv("sanitization.validation.fields.tool_name.pattern")
	_ = viper.BindEnv("sanitization.validation.fields.tool_params.strip_html")
	_ = viper.BindEnv("sanitization.validation.fields.tool_params.strip_scripts")

	// API key protection
	_ = viper.BindEnv("api_key_protection.enabled")
	_ = viper.BindEnv("api_key_protection.detection.builtin_patterns")
	// Note: detection.custom_patterns is an array of objects; use a config file.
	_ = viper.BindEnv("api_key_protection.detection.minimum_key_length")
	_ = viper.BindEnv("api_key_protection.storage.encryption")
	_ = viper.BindEnv("api_key_protection.storage.ttl")
	_ = viper.BindEnv("api_key_protection.storage.max_keys_per_connection")

	// Rate limiting
	_ = viper.BindEnv("rate_limiting.enabled")
	_ = viper.BindEnv("rate_limiting.global.requests_per_minute")
	_ = viper.BindEnv("rate_limiting.global.requests_per_hour")
	_ = viper.BindEnv("rate_limiting.per_client.requests_per_minute")
	_ = viper.BindEnv("rate_limiting.per_client.requests_per_hour")
	// Note: rate_limiting.per_method is a map; use a config file.

	// Proxy
	_ = viper.BindEnv("proxy.port")
	_ = viper.BindEnv("proxy.host")
	_ = viper.BindEnv("proxy.mcp_server_url")
	_ = viper.BindEnv("proxy.max_connections")
	_ = viper.BindEnv("proxy.max_message_size")
	_ = viper.BindEnv("proxy.max_queue_size")
	_ = viper.BindEnv("proxy.connection_timeout")
	_ = viper.BindEnv("proxy.auto_reconnect")

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates the result.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars and defaults only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults(viper.IsSet)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// not validate. Use this when CLI flags may still override fields (e.g.
// --dev-mode) before validation runs.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults(viper.IsSet)
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or "" if none was found (env vars and defaults only).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
