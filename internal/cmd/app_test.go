package cmd

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-cure/oncare/internal/config"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/log"
)

func TestUILoggerWritesErrorsToFile(t *testing.T) {
	home := t.TempDir()

	logger, closer, err := newLogger(config.Default(), home, true)
	require.NoError(t, err)
	require.NotNil(t, closer)

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, log.LevelInfo))
	logger.Info("session state changed")
	logger.LogError(ctx, "command failed", errors.NotAuthenticated())
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(config.UILogPath(home))
	require.NoError(t, err)
	assert.Contains(t, string(data), "command failed")
	assert.Contains(t, string(data), "oncare auth login")
	assert.NotContains(t, string(data), "session state changed")
}

func TestCLILoggerHasNoFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "warn"

	logger, closer, err := newLogger(cfg, t.TempDir(), false)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.True(t, logger.Enabled(context.Background(), log.LevelWarn))
	assert.False(t, logger.Enabled(context.Background(), log.LevelInfo))
}

func TestDebugFlagLogsEverything(t *testing.T) {
	rootFlags.debug = true
	t.Cleanup(func() { rootFlags.debug = false })

	logger, closer, err := newLogger(config.Default(), t.TempDir(), false)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.True(t, logger.Enabled(context.Background(), log.LevelDebug))
	assert.True(t, logger.Config().AddSource)
}

func TestDebugFlagReachesUILog(t *testing.T) {
	rootFlags.debug = true
	t.Cleanup(func() { rootFlags.debug = false })

	logger, closer, err := newLogger(config.Default(), t.TempDir(), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })
	assert.True(t, logger.Enabled(context.Background(), log.LevelDebug))
}

func TestDebugFlagParses(t *testing.T) {
	testEnv(t)

	_, err := execute(t, "--debug", "auth", "status")
	require.NoError(t, err)
}
