package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "storage": {"driver": "sqlite", "path": "/tmp/themeforge.db"},
	  "client": {"base_url": "http://127.0.0.1:9000", "request_timeout_seconds": 30},
	  "gateway": {"host": "0.0.0.0", "port": 18790, "provider": "openai", "model": "openai/gpt-5.2"},
	  "limits": {"prompt_characters": 200},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("THEMEFORGE_CONFIG", path)
	t.Setenv("THEMEFORGE_API_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage.driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Gateway.Provider != "openai" {
		t.Fatalf("gateway.provider = %q, want openai", cfg.Gateway.Provider)
	}
	if cfg.Limits.PromptCharacters != 200 {
		t.Fatalf("limits.prompt_characters = %d, want 200", cfg.Limits.PromptCharacters)
	}
	if cfg.Limits.MaxImageFiles != DefaultMaxImageFiles {
		t.Fatalf("limits.max_image_files = %d, want default %d", cfg.Limits.MaxImageFiles, DefaultMaxImageFiles)
	}
	if cfg.Gateway.FreeTierRequests != DefaultFreeTierRequests {
		t.Fatalf("gateway.free_tier_requests = %d, want default %d", cfg.Gateway.FreeTierRequests, DefaultFreeTierRequests)
	}
}

func TestLoadConfigKeepsZeroFreeTier(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "zero", body: `{"gateway": {"free_tier_requests": 0}}`, want: 0},
		{name: "negative", body: `{"gateway": {"free_tier_requests": -1}}`, want: -1},
		{name: "absent", body: `{"gateway": {"port": 9000}}`, want: DefaultFreeTierRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("write config file: %v", err)
			}
			t.Setenv("THEMEFORGE_CONFIG", path)

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig error: %v", err)
			}
			if cfg.Gateway.FreeTierRequests != tt.want {
				t.Fatalf("gateway.free_tier_requests = %d, want %d", cfg.Gateway.FreeTierRequests, tt.want)
			}
		})
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("THEMEFORGE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("THEMEFORGE_CONFIG", "")
	t.Setenv("THEMEFORGE_API_URL", "http://example.test")
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Client.BaseURL != "http://example.test" {
		t.Fatalf("client.base_url = %q, want env override", cfg.Client.BaseURL)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("storage.driver = %q, want file", cfg.Storage.Driver)
	}
	if cfg.Limits.PromptCharacters != DefaultPromptCharacterLimit {
		t.Fatalf("limits.prompt_characters = %d, want %d", cfg.Limits.PromptCharacters, DefaultPromptCharacterLimit)
	}
}

func TestAuthTokenEnvOverride(t *testing.T) {
	t.Setenv("THEMEFORGE_CONFIG", "")
	t.Setenv("THEMEFORGE_AUTH_TOKEN", "  secret  ")
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Client.AuthToken != "secret" {
		t.Fatalf("client.auth_token = %q, want secret", cfg.Client.AuthToken)
	}
	if cfg.Gateway.AuthToken != "" {
		t.Fatalf("gateway.auth_token = %q, want empty", cfg.Gateway.AuthToken)
	}
}
