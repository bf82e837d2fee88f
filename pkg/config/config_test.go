package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-labs/sentinel/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults when no
// environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("KILL_SWITCH", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 5.0, cfg.RatePerSec)
	assert.False(t, cfg.KillSwitch)
	assert.False(t, cfg.OTELEnabled)
}

// TestLoad_Overrides verifies that environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AGENT_ID", "agent.prod")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://sentinel:5432/sentinel")
	t.Setenv("POLL_INTERVAL", "15s")
	t.Setenv("WARNING_DUST", "1")
	t.Setenv("KILL_SWITCH", "true")
	t.Setenv("RESOLUTION_POLICY", "owner_dead")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "agent.prod", cfg.AgentID)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "postgres://sentinel:5432/sentinel", cfg.DatabaseURL)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, uint64(1), cfg.WarningDust)
	assert.True(t, cfg.KillSwitch)
	assert.Equal(t, "owner_dead", cfg.ResolutionPolicy)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "not-a-duration")
	t.Setenv("RATE_PER_SEC", "nope")
	t.Setenv("WARNING_DUST", "-3")

	cfg := config.Load()

	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 5.0, cfg.RatePerSec)
	assert.Zero(t, cfg.WarningDust)
}

func TestLoadWatchlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owners:\n  - alice.test\n  - bob.test\n"), 0o600))

	wl, err := config.LoadWatchlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice.test", "bob.test"}, wl.Owners)
}

func TestLoadWatchlistMissingFileIsEmpty(t *testing.T) {
	wl, err := config.LoadWatchlist(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, wl.Owners)

	wl, err = config.LoadWatchlist("")
	require.NoError(t, err)
	assert.Empty(t, wl.Owners)
}

func TestLoadWatchlistBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owners: {not a list"), 0o600))

	_, err := config.LoadWatchlist(path)
	assert.Error(t, err)
}
