package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Healing.MaxRounds)
	assert.Equal(t, 2000, cfg.Profiles.StaticIdleMs)
	assert.Equal(t, 5000, cfg.Profiles.DynamicIdleMs)
	assert.Equal(t, 1500, cfg.Profiles.SettleDelayMs)
	assert.Equal(t, 35, cfg.Profiles.StaticDriftPercent)
	assert.True(t, cfg.Browser.Stealth)
	assert.Contains(t, cfg.Sentinel.Keywords, "required")
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Cache.DBPath, cfg.Cache.DBPath)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacts.yaml")
	content := `
browser:
  headless: false
  viewport_width: 1280
healing:
  max_rounds: 5
profiles:
  dynamic_hosts:
    - lightning.force.com
  success_tokens:
    www.youtube.com: "ytd-watch-metadata h1"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 5, cfg.Healing.MaxRounds)
	assert.Equal(t, []string{"lightning.force.com"}, cfg.Profiles.DynamicHosts)
	assert.Equal(t, "ytd-watch-metadata h1", cfg.Profiles.SuccessTokens["www.youtube.com"])
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("PACTS_MAX_HEAL_ROUNDS", "1")
	t.Setenv("PACTS_HEADLESS", "false")
	t.Setenv("PACTS_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Healing.MaxRounds)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestValidateBounds(t *testing.T) {
	cfg := Default()
	cfg.Healing.MaxRounds = 6
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Profiles.StaticDriftPercent = 0
	assert.Error(t, cfg.Validate())
}
