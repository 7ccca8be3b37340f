package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "marketdash/internal/errors"
)

func TestLoadCreatesTemplatesAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s template to be created: %v", name, err)
		}
	}

	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Chat.FallbackReply != DefaultFallbackReply {
		t.Errorf("FallbackReply = %q", cfg.Chat.FallbackReply)
	}
	if cfg.Backend.RateLimit != 10 || cfg.Backend.RateBurst != 20 {
		t.Errorf("rate limit = %v/%d", cfg.Backend.RateLimit, cfg.Backend.RateBurst)
	}
	if cfg.Storage.Path != filepath.Join(dir, "marketdash.db") {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
}

func TestLoadReadsTemplateOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if cfg.Stream.Mode != StreamPoll || cfg.Stream.PollInterval != 15*time.Second {
		t.Errorf("unexpected stream config: %+v", cfg.Stream)
	}
	if cfg.UI.Currency != "EGP" {
		t.Errorf("Currency = %q", cfg.UI.Currency)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKETDASH_BASE_URL", "https://api.example.com")
	t.Setenv("MARKETDASH_TOKEN", "secret-token")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Credentials.Token != "secret-token" {
		t.Errorf("Token not overridden")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Backend: BackendConfig{BaseURL: "http://localhost:8000", Timeout: time.Second},
			Stream:  StreamConfig{Mode: StreamPoll, PollInterval: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.Backend.BaseURL = "/api" }},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.Backend.WarmupRetries = -1 }},
		{"websocket without url", func(c *Config) { c.Stream.Mode = StreamWebSocket }},
		{"unknown stream mode", func(c *Config) { c.Stream.Mode = "carrier-pigeon" }},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}
