package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout())
	assert.Equal(t, 5, cfg.Channel.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Channel.ReconnectDelay())
	assert.Equal(t, 5*time.Second, cfg.Channel.ReconnectDelayMax())
	assert.True(t, cfg.Channel.EchoWrites)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  base_url: https://tasks.example.com/
  timeout_sec: 3
channel:
  echo_writes: false
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TASKBOARD_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://tasks.example.com", cfg.API.BaseURL)
	assert.Equal(t, 3, cfg.API.TimeoutSec)
	assert.False(t, cfg.Channel.EchoWrites)
	assert.Equal(t, 5, cfg.Channel.ReconnectAttempts)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://api.internal:8080"
	cfg.Display.RefreshIntervalSec = 45

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.internal:8080", loaded.API.BaseURL)
	assert.Equal(t, 45*time.Second, loaded.Display.RefreshInterval())
}
