package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-cure/oncare/internal/errors"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5*time.Second, cfg.API.SessionTimeout)
	assert.False(t, cfg.Realtime.Retry.Enabled)
	assert.Equal(t, "/feed", cfg.Routes.Landing)
}

func TestSaveThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")

	cfg := Default()
	cfg.API.BaseURL = "https://api.oncare.example"
	cfg.API.SessionTimeout = 2 * time.Second
	cfg.Realtime.Retry.Enabled = true
	require.NoError(t, Save(dir, cfg))

	info, err := os.Stat(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFile(t *testing.T) {
	dir := t.TempDir()
	content := "api:\n  base_url: http://127.0.0.1:9000\n  session_timeout: 750ms\nlogging:\n  level: debug\n"
	require.NoError(t, os.WriteFile(Path(dir), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000", cfg.API.BaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.API.SessionTimeout)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("api:\n  base_url: http://from-file:8080\n"), 0o600))

	t.Setenv("ONCARE_API_URL", "http://from-env:8080")
	t.Setenv("ONCARE_REALTIME_RETRY", "true")
	t.Setenv("ONCARE_SESSION_TIMEOUT", "3s")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:8080", cfg.API.BaseURL)
	assert.True(t, cfg.Realtime.Retry.Enabled)
	assert.Equal(t, 3*time.Second, cfg.API.SessionTimeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("api: [not, a, map"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigLoad))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }},
		{"ws base url", func(c *Config) { c.API.BaseURL = "ws://localhost:8080" }},
		{"http websocket url", func(c *Config) { c.API.WebSocketURL = "http://localhost:8080/ws" }},
		{"zero session timeout", func(c *Config) { c.API.SessionTimeout = 0 }},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }},
		{"relative route", func(c *Config) { c.Routes.Login = "login" }},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestHomeDir(t *testing.T) {
	t.Setenv(HomeEnv, "/tmp/oncare-test-home")
	dir, err := HomeDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/oncare-test-home", dir)
	assert.Equal(t, "/tmp/oncare-test-home/config.yaml", Path(dir))
	assert.Equal(t, "/tmp/oncare-test-home/cookies.json", CookiePath(dir))
	assert.Equal(t, "/tmp/oncare-test-home/ui.log", UILogPath(dir))
}
