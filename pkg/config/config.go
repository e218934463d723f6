package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	envConfigPath = "THEMEFORGE_CONFIG"
	envAPIURL     = "THEMEFORGE_API_URL"
	envStorePath  = "THEMEFORGE_STORE_PATH"
	envPresetPath = "THEMEFORGE_PRESETS"
	envAuthToken  = "THEMEFORGE_AUTH_TOKEN"
)

const (
	DefaultPromptCharacterLimit = 500
	DefaultMaxImageFiles        = 3
	DefaultMaxImageFileSize     = 5 * 1024 * 1024
	DefaultMaxSVGFileSize       = 1 * 1024 * 1024
	DefaultFreeTierRequests     = 5
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Storage   StorageConfig   `json:"storage"`
	Client    ClientConfig    `json:"client"`
	Gateway   GatewayConfig   `json:"gateway"`
	Providers ProvidersConfig `json:"providers"`
	Presets   PresetsConfig   `json:"presets"`
	Limits    LimitsConfig    `json:"limits"`
	Tracing   TracingConfig   `json:"tracing,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// StorageConfig selects the key-value backend used for the chat log and drafts.
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

// ClientConfig configures the generation API client used by the chat.
type ClientConfig struct {
	BaseURL               string               `json:"base_url"`
	AuthToken             string               `json:"auth_token,omitempty"`
	RequestTimeoutSeconds int                  `json:"request_timeout_seconds"`
	CircuitBreaker        CircuitBreakerConfig `json:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the breaker wrapped around generation requests.
type CircuitBreakerConfig struct {
	MaxFailures     uint32 `json:"max_failures"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// GatewayConfig configures the HTTP generation gateway.
type GatewayConfig struct {
	Host             string  `json:"host"`
	Port             int     `json:"port"`
	AuthToken        string  `json:"auth_token,omitempty"`
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`

	// FreeTierRequests is how many generations a client gets before the
	// gateway asks for a subscription. It defaults to DefaultFreeTierRequests
	// when absent from the file; 0 allows none and a negative value makes
	// every client subscribed.
	FreeTierRequests int `json:"free_tier_requests"`

	// QuotaReset is a cron spec for when free-tier counters start over.
	QuotaReset string          `json:"quota_reset"`
	RateLimit  RateLimitConfig `json:"rate_limit"`
}

// RateLimitConfig bounds generation requests per client address. A negative
// RequestsPerMinute turns the limiter off.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	Burst             int `json:"burst"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenAI    OpenAIProviderConfig    `json:"openai"`
	Anthropic AnthropicProviderConfig `json:"anthropic"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	BaseURL               string `json:"base_url"`
	APIKeyEnv             string `json:"api_key_env"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// AnthropicProviderConfig configures the Anthropic Messages API client.
type AnthropicProviderConfig struct {
	BaseURL               string `json:"base_url"`
	APIKeyEnv             string `json:"api_key_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// PresetsConfig points at an optional user preset registry.
type PresetsConfig struct {
	Path string `json:"path"`
}

// LimitsConfig bounds prompt and upload sizes.
type LimitsConfig struct {
	PromptCharacters int   `json:"prompt_characters"`
	MaxImageFiles    int   `json:"max_image_files"`
	MaxImageFileSize int64 `json:"max_image_file_size"`
	MaxSVGFileSize   int64 `json:"max_svg_file_size"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled  bool   `json:"enabled"`
	Exporter string `json:"exporter,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, and applies defaults and
// environment overrides. A missing config file yields the defaults unless
// THEMEFORGE_CONFIG names a path explicitly.
func LoadConfig() (*Config, error) {
	cfg := Config{Gateway: GatewayConfig{FreeTierRequests: DefaultFreeTierRequests}}

	configPath, err := findConfigPath()
	switch {
	case errors.Is(err, errConfigNotFound):
	case err != nil:
		return nil, err
	default:
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Default returns a configuration populated only with defaults.
func Default() *Config {
	cfg := &Config{Gateway: GatewayConfig{FreeTierRequests: DefaultFreeTierRequests}}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = defaultStorePath(cfg.Storage.Driver)
	}
	if strings.TrimSpace(cfg.Client.BaseURL) == "" {
		cfg.Client.BaseURL = "http://127.0.0.1:18791"
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = 18791
	}
	if strings.TrimSpace(cfg.Gateway.Host) == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if strings.TrimSpace(cfg.Gateway.Provider) == "" {
		cfg.Gateway.Provider = "fantasy"
	}
	if strings.TrimSpace(cfg.Gateway.Model) == "" {
		cfg.Gateway.Model = defaultModel(cfg.Gateway.Provider)
	}
	if strings.TrimSpace(cfg.Gateway.QuotaReset) == "" {
		cfg.Gateway.QuotaReset = "@daily"
	}
	if cfg.Gateway.RateLimit.RequestsPerMinute == 0 {
		cfg.Gateway.RateLimit.RequestsPerMinute = 30
	}
	if cfg.Gateway.RateLimit.Burst <= 0 {
		cfg.Gateway.RateLimit.Burst = 5
	}
	if cfg.Limits.PromptCharacters <= 0 {
		cfg.Limits.PromptCharacters = DefaultPromptCharacterLimit
	}
	if cfg.Limits.MaxImageFiles <= 0 {
		cfg.Limits.MaxImageFiles = DefaultMaxImageFiles
	}
	if cfg.Limits.MaxImageFileSize <= 0 {
		cfg.Limits.MaxImageFileSize = DefaultMaxImageFileSize
	}
	if cfg.Limits.MaxSVGFileSize <= 0 {
		cfg.Limits.MaxSVGFileSize = DefaultMaxSVGFileSize
	}
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv(envAPIURL)); value != "" {
		cfg.Client.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv(envStorePath)); value != "" {
		cfg.Storage.Path = value
	}
	if value := strings.TrimSpace(os.Getenv(envPresetPath)); value != "" {
		cfg.Presets.Path = value
	}
	if value := strings.TrimSpace(os.Getenv(envAuthToken)); value != "" {
		cfg.Client.AuthToken = value
	}
}

func defaultModel(provider string) string {
	if provider == "anthropic" {
		return "anthropic/claude-sonnet-4-5"
	}
	return "openai/gpt-5.2"
}

func defaultStorePath(driver string) string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}

	switch driver {
	case "sqlite":
		return filepath.Join(dir, "themeforge", "themeforge.db")
	case "memory":
		return ""
	default:
		return filepath.Join(dir, "themeforge", "store.json")
	}
}

var errConfigNotFound = errors.New("config.json not found")

// findConfigPath resolves the active config file location.
//
// Precedence is THEMEFORGE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", errConfigNotFound
}
