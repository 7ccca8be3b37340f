// Package config provides configuration management for the dashboard client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	apperrors "marketdash/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Backend     BackendConfig `mapstructure:"backend"`
	Chat        ChatConfig    `mapstructure:"chat"`
	Stream      StreamConfig  `mapstructure:"stream"`
	Storage     StorageConfig `mapstructure:"storage"`
	UI          UIConfig      `mapstructure:"ui"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// BackendConfig holds the dashboard backend connection settings.
type BackendConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WarmupRetries int           `mapstructure:"warmup_retries"`
	WarmupDelay   time.Duration `mapstructure:"warmup_delay"`
	UserAgent     string        `mapstructure:"user_agent"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
}

// ChatConfig holds AI chat settings.
type ChatConfig struct {
	Language      string `mapstructure:"language"`
	FallbackReply string `mapstructure:"fallback_reply"`
	HistoryLimit  int    `mapstructure:"history_limit"`
}

// StreamConfig holds live price feed settings.
type StreamConfig struct {
	Mode         string        `mapstructure:"mode"` // websocket, poll, off
	URL          string        `mapstructure:"url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BufferSize   int           `mapstructure:"buffer_size"`
}

// StorageConfig holds local storage settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	Currency     string `mapstructure:"currency"`
	DateFormat   string `mapstructure:"date_format"`
}

// Credentials holds the backend access token.
type Credentials struct {
	Token string `mapstructure:"token"`
}

// Stream modes.
const (
	StreamWebSocket = "websocket"
	StreamPoll      = "poll"
	StreamOff       = "off"
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/marketdash"
	}
	return filepath.Join(home, ".config", "marketdash")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(configDir, "marketdash.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.warmup_retries", 3)
	v.SetDefault("backend.warmup_delay", 2*time.Second)
	v.SetDefault("backend.user_agent", "marketdash/"+Version)
	v.SetDefault("backend.rate_limit", 10.0)
	v.SetDefault("backend.rate_burst", 20)
	v.SetDefault("chat.language", "en")
	v.SetDefault("chat.fallback_reply", DefaultFallbackReply)
	v.SetDefault("chat.history_limit", 20)
	v.SetDefault("stream.mode", StreamPoll)
	v.SetDefault("stream.poll_interval", 15*time.Second)
	v.SetDefault("stream.buffer_size", 256)
	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.currency", "EGP")
	v.SetDefault("ui.date_format", "02 Jan 2006")
}

// Version is the client version reported in the User-Agent.
const Version = "0.3.0"

// DefaultFallbackReply is shown when an assistant turn carries no reply text.
const DefaultFallbackReply = "I'm sorry, I couldn't process that request. Please try again."

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKETDASH_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("MARKETDASH_TOKEN"); v != "" {
		cfg.Credentials.Token = v
	}
	if v := os.Getenv("MARKETDASH_STREAM_URL"); v != "" {
		cfg.Stream.URL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: backend.base_url %q is not an absolute URL", apperrors.ErrConfigInvalid, c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("%w: backend.timeout must be positive", apperrors.ErrConfigInvalid)
	}
	if c.Backend.WarmupRetries < 0 {
		return fmt.Errorf("%w: backend.warmup_retries must be non-negative", apperrors.ErrConfigInvalid)
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("%w: backend.rate_limit must be non-negative", apperrors.ErrConfigInvalid)
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("%w: chat.history_limit must be non-negative", apperrors.ErrConfigInvalid)
	}

	switch c.Stream.Mode {
	case StreamWebSocket:
		if c.Stream.URL == "" {
			return fmt.Errorf("%w: stream.url is required in websocket mode", apperrors.ErrConfigInvalid)
		}
	case StreamPoll:
		if c.Stream.PollInterval <= 0 {
			return fmt.Errorf("%w: stream.poll_interval must be positive", apperrors.ErrConfigInvalid)
		}
	case StreamOff, "":
	default:
		return fmt.Errorf("%w: unknown stream.mode %q (websocket, poll, off)", apperrors.ErrConfigInvalid, c.Stream.Mode)
	}

	return nil
}
