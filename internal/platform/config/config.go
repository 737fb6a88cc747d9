// Package config loads client configuration from environment variables,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	ServerURL   string `env:"SERVER_URL" default:"http://localhost:8000"`
	PushChannel bool   `env:"PUSH_CHANNEL" default:"true"`

	DebounceWindow   time.Duration `env:"DEBOUNCE_WINDOW" default:"1500ms"`
	MinRealtimeChars int           `env:"MIN_REALTIME_CHARS" default:"10"`
	ResultTimeout    time.Duration `env:"RESULT_TIMEOUT" default:"10s"`

	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY" default:"1s"`
	ReconnectMaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY" default:"30s"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" default:"15s"`

	// MetricsAddr exposes /metrics on this address when set (e.g. ":9090").
	MetricsAddr string `env:"METRICS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Port is only used by the devserver binary.
	Port string `env:"PORT" default:"8000"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("SERVER_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("SERVER_URL must use http or https, got %q", u.Scheme)
	}

	if cfg.ReconnectMaxAttempts < 1 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be at least 1, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("RECONNECT_BASE_DELAY must be positive, got %v", cfg.ReconnectBaseDelay)
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		return fmt.Errorf("RECONNECT_MAX_DELAY (%v) must not be below RECONNECT_BASE_DELAY (%v)",
			cfg.ReconnectMaxDelay, cfg.ReconnectBaseDelay)
	}
	if cfg.DebounceWindow <= 0 {
		return fmt.Errorf("DEBOUNCE_WINDOW must be positive, got %v", cfg.DebounceWindow)
	}

	return nil
}
