// Package config loads the songdub service configuration from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/verseforge/songdub/gateway"
	"github.com/verseforge/songdub/session"
)

// Config is the full service configuration.
type Config struct {
	// Listen is the HTTP listen address for the serve command.
	Listen string `yaml:"listen"`

	// Gateway configures the AI service client.
	Gateway GatewayConfig `yaml:"gateway"`

	// Session configures the dubbing workflow.
	Session SessionConfig `yaml:"session"`

	// Telemetry configures OTLP trace export.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// RateLimit caps upload requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rateLimit"`

	// LogLevel sets the slog level (debug, info, warn, error).
	LogLevel string `yaml:"logLevel"`
}

// GatewayConfig configures the AI service client.
type GatewayConfig struct {
	// APIKey authenticates with the AI service. Usually left empty here
	// and supplied via GEMINI_API_KEY or GOOGLE_API_KEY.
	APIKey string `yaml:"apiKey"`

	// BaseURL overrides the service endpoint, mainly for tests.
	BaseURL string `yaml:"baseUrl"`

	// TextModel handles analysis and translation.
	TextModel string `yaml:"textModel"`

	// TTSModel handles speech synthesis.
	TTSModel string `yaml:"ttsModel"`

	// Voices maps detected vocal gender to a synthesis voice name.
	Voices map[string]string `yaml:"voices"`

	// NeutralVoice is used when the detected gender has no mapping.
	NeutralVoice string `yaml:"neutralVoice"`
}

// SessionConfig configures the dubbing workflow.
type SessionConfig struct {
	// MaxUploadBytes caps accepted file sizes.
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	// DefaultTargetLanguage is the initial translation target.
	DefaultTargetLanguage string `yaml:"defaultTargetLanguage"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	// Enabled turns on trace export.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP HTTP collector address (host:port).
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Session: SessionConfig{
			MaxUploadBytes:        session.DefaultMaxUploadBytes,
			DefaultTargetLanguage: session.DefaultTargetLanguage,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML configuration file and applies environment overrides.
// An empty path returns the defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration. Secrets
// always come from the environment when present.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SONGDUB_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("SONGDUB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" && cfg.Gateway.APIKey == "" {
		cfg.Gateway.APIKey = v
	}
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("missing required field: listen")
	}
	if c.Session.MaxUploadBytes < 0 {
		return fmt.Errorf("session.maxUploadBytes must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rateLimit must not be negative")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// GatewayClientConfig converts the YAML view into the client configuration.
func (c *Config) GatewayClientConfig() gateway.Config {
	voices := make(map[gateway.Gender]string, len(c.Gateway.Voices))
	for gender, voice := range c.Gateway.Voices {
		voices[gateway.Gender(gender)] = voice
	}
	return gateway.Config{
		APIKey:       c.Gateway.APIKey,
		BaseURL:      c.Gateway.BaseURL,
		TextModel:    c.Gateway.TextModel,
		TTSModel:     c.Gateway.TTSModel,
		Voices:       voices,
		NeutralVoice: c.Gateway.NeutralVoice,
	}
}

// SessionClientConfig converts the YAML view into the orchestrator
// configuration.
func (c *Config) SessionClientConfig() session.Config {
	return session.Config{
		MaxUploadBytes:        c.Session.MaxUploadBytes,
		DefaultTargetLanguage: c.Session.DefaultTargetLanguage,
	}
}
