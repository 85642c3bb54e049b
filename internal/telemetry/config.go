package telemetry

import (
	"github.com/on-cure/oncare/internal/config"
	"github.com/on-cure/oncare/internal/version"
)

// Config holds configuration for the tracer
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment ends up as deployment.environment.name on every span.
	Environment string

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector URL, e.g.
	// http://localhost:4318. If empty, spans are sampled but not exported.
	Endpoint string

	// SampleRate is the fraction of traces to sample (0.0 to 1.0).
	SampleRate float64
}

// DefaultConfig returns a disabled configuration. The CLI is short lived and
// tracing is opt-in.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "oncare",
		ServiceVersion: version.Version,
		Environment:    "development",
		Enabled:        false,
		SampleRate:     1.0,
	}
}

// FromConfig builds a tracer configuration from the client configuration.
func FromConfig(cfg config.TelemetryConfig) Config {
	c := DefaultConfig()
	c.Enabled = cfg.Enabled
	c.Endpoint = cfg.Endpoint
	if cfg.SampleRate > 0 {
		c.SampleRate = cfg.SampleRate
	}
	if c.Endpoint != "" {
		c.Environment = "production"
	}
	return c
}
