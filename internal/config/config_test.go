package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 0.7, cfg.Thresholds.Accept)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.Timeout)
	assert.True(t, cfg.Model.Enabled)
}

func TestLoad_File(t *testing.T) {
	raw := `
listen_addr: ":9999"
model:
  enabled: false
thresholds:
  accept: 0.8
  clarify: 0.3
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.False(t, cfg.Model.Enabled)
	assert.Equal(t, 0.8, cfg.Thresholds.Accept)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONCIERGE_REDIS_ADDR", "redis:6379")
	t.Setenv("CONCIERGE_MODEL_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Model.Enabled)
}

func TestValidate_RejectsInvertedThresholds(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.Accept = 0.3
	cfg.Thresholds.Clarify = 0.6
	assert.Error(t, cfg.Validate())
}
