// Package config loads the client configuration from
// $ONCARE_HOME/config.yaml and applies ONCARE_* environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/on-cure/oncare/internal/errors"
)

const (
	// HomeEnv overrides the client home directory.
	HomeEnv = "ONCARE_HOME"

	configFileName = "config.yaml"
	cookieFileName = "cookies.json"
	uiLogFileName  = "ui.log"
)

// Config is the full client configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Routes    RoutesConfig    `yaml:"routes"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Wallet    WalletConfig    `yaml:"wallet"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url" env:"ONCARE_API_URL"`
	// WebSocketURL is derived from BaseURL when empty.
	WebSocketURL     string        `yaml:"websocket_url,omitempty" env:"ONCARE_WS_URL"`
	Timeout          time.Duration `yaml:"timeout" env:"ONCARE_API_TIMEOUT"`
	SessionTimeout   time.Duration `yaml:"session_timeout" env:"ONCARE_SESSION_TIMEOUT"`
	ValidateContract bool          `yaml:"validate_contract" env:"ONCARE_VALIDATE_CONTRACT"`
}

type RealtimeConfig struct {
	Enabled bool        `yaml:"enabled" env:"ONCARE_REALTIME_ENABLED"`
	Retry   RetryConfig `yaml:"retry"`
}

// RetryConfig controls reconnection of the realtime channel. Disabled by
// default: a failed connection stays closed until the next login.
type RetryConfig struct {
	Enabled         bool          `yaml:"enabled" env:"ONCARE_REALTIME_RETRY"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxAttempts     uint          `yaml:"max_attempts"`
}

type RoutesConfig struct {
	Landing string `yaml:"landing"`
	Login   string `yaml:"login"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"ONCARE_LOG_LEVEL"`
	Format string `yaml:"format" env:"ONCARE_LOG_FORMAT"`
}

type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" env:"ONCARE_OTEL_ENABLED"`
	Endpoint   string  `yaml:"endpoint,omitempty" env:"ONCARE_OTEL_ENDPOINT"`
	SampleRate float64 `yaml:"sample_rate"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" env:"ONCARE_METRICS_ADDR"`
}

// WalletConfig controls the simulated ledger.
type WalletConfig struct {
	SimulateLatency bool `yaml:"simulate_latency" env:"ONCARE_WALLET_LATENCY"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			Timeout:        30 * time.Second,
			SessionTimeout: 5 * time.Second,
		},
		Realtime: RealtimeConfig{
			Enabled: true,
			Retry: RetryConfig{
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     30 * time.Second,
				MaxAttempts:     5,
			},
		},
		Routes: RoutesConfig{
			Landing: "/feed",
			Login:   "/login",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			SampleRate: 1.0,
		},
		Wallet: WalletConfig{
			SimulateLatency: true,
		},
	}
}

// HomeDir returns the client home directory: $ONCARE_HOME or ~/.oncare.
func HomeDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".oncare"), nil
}

// Path returns the config file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, configFileName)
}

// CookiePath returns the cookie store location inside dir.
func CookiePath(dir string) string {
	return filepath.Join(dir, cookieFileName)
}

// UILogPath returns where the interactive UI writes its log.
func UILogPath(dir string) string {
	return filepath.Join(dir, uiLogFileName)
}

// Load reads dir/config.yaml over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := Path(dir)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to parse "+path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.FileRead(path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "parse env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to dir/config.yaml, creating dir if needed.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.FileWrite(dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "failed to marshal config", err)
	}

	path := Path(dir)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.FileWrite(path, err)
	}
	return nil
}

// Validate checks the values the client cannot run without.
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.API.WebSocketURL != "" {
		if err := validateURL("api.websocket_url", c.API.WebSocketURL, "ws", "wss"); err != nil {
			return err
		}
	}
	if c.API.Timeout <= 0 {
		return errors.ConfigInvalid("api.timeout", "must be positive")
	}
	if c.API.SessionTimeout <= 0 {
		return errors.ConfigInvalid("api.session_timeout", "must be positive")
	}
	if !strings.HasPrefix(c.Routes.Landing, "/") || !strings.HasPrefix(c.Routes.Login, "/") {
		return errors.ConfigInvalid("routes", "routes must start with /")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.ConfigInvalid("telemetry.sample_rate", "must be between 0 and 1")
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	if raw == "" {
		return errors.ConfigInvalid(key, "must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.ConfigInvalid(key, err.Error())
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return errors.ConfigInvalid(key, fmt.Sprintf("expected a %s URL, got %q", strings.Join(schemes, " or "), raw))
}
