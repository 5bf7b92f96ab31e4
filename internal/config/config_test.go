// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 8090, cfg.Proxy.BasePort)
	assert.Equal(t, 2*time.Hour, cfg.Session.Timeout)
	assert.Equal(t, 10, cfg.Recording.MaxConcurrent)
	assert.Equal(t, 5, cfg.Preview.MaxViewers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listenAddr: ":9000"
proxy:
  basePort: 9100
recording:
  maxConcurrent: 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 9100, cfg.Proxy.BasePort)
	assert.Equal(t, 3, cfg.Recording.MaxConcurrent)
	// Untouched sections keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Proxy.HealthTimeout)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":9000\"\n"), 0o600))
	t.Setenv("COURTCAST_LISTEN", ":7000")
	t.Setenv("COURTCAST_SESSION_TIMEOUT", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.Session.Timeout)
}

func TestLoad_RejectsInvalidPortRange(t *testing.T) {
	t.Setenv("COURTCAST_PROXY_BASE_PORT", "65000")
	t.Setenv("COURTCAST_PROXY_PORT_RANGE", "2000")

	_, err := Load("")
	require.Error(t, err)
}

func TestVideoDir_PerClub(t *testing.T) {
	cfg := Default()
	cfg.Recording.VideosDir = filepath.Join(t.TempDir(), "videos")

	dir, err := cfg.VideoDir(42)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Recording.VideosDir, "42"), dir)
	assert.DirExists(t, dir)
}
