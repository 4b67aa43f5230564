package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "dealwatch.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout())
	assert.Equal(t, 2, cfg.Fetch.MaxRetries)
	assert.Equal(t, 5, cfg.Fetch.MaxRedirects)
	assert.InDelta(t, 1.0, cfg.Fetch.HostRatePerSec, 0.001)
	assert.Equal(t, 2, cfg.Fetch.HostRateBurst)
	assert.Equal(t, "profiles.yaml", cfg.Profiles.Path)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval())
	assert.Equal(t, 4, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 5, cfg.Scheduler.MaxFailures)
	assert.False(t, cfg.Track.DeleteOrphaned)
	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/dealwatch
fetch:
  timeout_secs: 30
  max_retries: 1
scheduler:
  interval_secs: 60
  max_concurrent: 8
track:
  delete_orphaned: true
notify:
  webhook_url: https://hooks.example.com/dealwatch
  telegram:
    token: bot-token
    chat_id: 12345
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/dealwatch", cfg.Store.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout())
	assert.Equal(t, 1, cfg.Fetch.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval())
	assert.Equal(t, 8, cfg.Scheduler.MaxConcurrent)
	assert.True(t, cfg.Track.DeleteOrphaned)
	assert.Equal(t, "https://hooks.example.com/dealwatch", cfg.Notify.WebhookURL)
	assert.Equal(t, "bot-token", cfg.Notify.Telegram.Token)
	assert.Equal(t, int64(12345), cfg.Notify.Telegram.ChatID)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset keys keep their defaults.
	assert.Equal(t, 5, cfg.Fetch.MaxRedirects)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromEnv(t *testing.T) {
	chTempDir(t)

	t.Setenv("DEALWATCH_STORE_DRIVER", "postgres")
	t.Setenv("DEALWATCH_SCHEDULER_INTERVAL_SECS", "120")
	t.Setenv("DEALWATCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.Interval())
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
