package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "file", cfg.Credentials.Backend)
	assert.Equal(t, 80, cfg.UI.NarrowWidth)
	assert.False(t, cfg.Live.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketchat.yaml")
	data := []byte(`
api:
  base_url: https://market.example.edu
  timeout: 5s
credentials:
  backend: sqlite
  path: /tmp/creds.db
live:
  enabled: true
ui:
  narrow_width: 100
send:
  per_minute: 20
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("MARKETCHAT_NARROW_WIDTH", "60")
	t.Setenv("MARKETCHAT_TIMEOUT", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://market.example.edu", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout, "malformed env keeps file value")
	assert.Equal(t, "sqlite", cfg.Credentials.Backend)
	assert.Equal(t, "/tmp/creds.db", cfg.Credentials.Path)
	assert.True(t, cfg.Live.Enabled)
	assert.Equal(t, 60, cfg.UI.NarrowWidth)
	assert.Equal(t, 20, cfg.Send.PerMinute)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
