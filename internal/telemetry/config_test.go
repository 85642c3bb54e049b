package telemetry

import (
	"testing"

	"github.com/on-cure/oncare/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	if c.ServiceName != "oncare" {
		t.Errorf("ServiceName = %q, want %q", c.ServiceName, "oncare")
	}
	if c.ServiceVersion == "" {
		t.Error("ServiceVersion should not be empty")
	}
	if c.Enabled {
		t.Error("Enabled should be false by default")
	}
	if c.Endpoint != "" {
		t.Error("Endpoint should be empty by default")
	}
	if c.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v, want 1.0", c.SampleRate)
	}
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      config.TelemetryConfig
		enabled bool
		env     string
		rate    float64
	}{
		{"disabled", config.TelemetryConfig{}, false, "development", 1.0},
		{"local only", config.TelemetryConfig{Enabled: true, SampleRate: 0.5}, true, "development", 0.5},
		{"exported", config.TelemetryConfig{Enabled: true, Endpoint: "http://localhost:4318"}, true, "production", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := FromConfig(tt.in)
			if c.Enabled != tt.enabled {
				t.Errorf("Enabled = %v, want %v", c.Enabled, tt.enabled)
			}
			if c.Environment != tt.env {
				t.Errorf("Environment = %q, want %q", c.Environment, tt.env)
			}
			if c.SampleRate != tt.rate {
				t.Errorf("SampleRate = %v, want %v", c.SampleRate, tt.rate)
			}
		})
	}
}
