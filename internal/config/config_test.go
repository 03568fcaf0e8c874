package config

import (
	"os"
	"path/filepath"
	"testing"

	"mailprobe/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"path": "mailprobe.db"}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultHeloDomain, cfg.Probe.HeloDomain)
	assert.Equal(t, constants.DefaultBounceDelayMinSec, cfg.Bounce.DelayMinSec)
	assert.Equal(t, constants.DefaultBounceDelayMaxSec, cfg.Bounce.DelayMaxSec)
	assert.Equal(t, constants.DefaultRecentWindow, cfg.Bounce.RecentWindow)
	assert.Equal(t, constants.DefaultBounceWorkers, cfg.Bounce.Workers)
	assert.Equal(t, constants.DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 9090, "rateLimitRequests": 10},
		"database": {"path": "mailprobe.db"},
		"probe": {"heloDomain": "probe.example.com", "sendTimeoutSec": 20},
		"bounce": {"delayMinSec": 2, "delayMaxSec": 4, "recentWindow": 50},
		"log_level": "warn"
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.RateLimitRequests)
	assert.Equal(t, "probe.example.com", cfg.Probe.HeloDomain)
	assert.Equal(t, 20, cfg.Probe.SendTimeoutSec)
	assert.Equal(t, 2, cfg.Bounce.DelayMinSec)
	assert.Equal(t, 4, cfg.Bounce.DelayMaxSec)
	assert.Equal(t, 50, cfg.Bounce.RecentWindow)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigMissingDBPath(t *testing.T) {
	path := writeConfig(t, `{"server": {"port": 8080}}`)

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrMissingDBPath)
}

func TestLoadConfigInvalidBounceDelays(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"path": "mailprobe.db"},
		"bounce": {"delayMinSec": 10, "delayMaxSec": 5}
	}`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bounce delay")
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsTraversal(t *testing.T) {
	_, err := LoadConfig("../../etc/passwd")
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"path": "mailprobe.db"}
	}`)

	t.Setenv("MAILPROBE_DB_PATH", "/var/lib/mailprobe/override.db")
	t.Setenv("MAILPROBE_PORT", "9999")
	t.Setenv("MAILPROBE_LOG_LEVEL", "error")
	t.Setenv("MAILPROBE_HELO_DOMAIN", "helo.example.com")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mailprobe/override.db", cfg.Database.Path)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "helo.example.com", cfg.Probe.HeloDomain)
}

func TestProductionRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"path": "mailprobe.db"}
	}`)

	t.Setenv("MAILPROBE_ENV", "production")
	t.Setenv("MAILPROBE_API_KEY", "")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestProductionRejectsShortAPIKey(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"path": "mailprobe.db"}
	}`)

	t.Setenv("MAILPROBE_ENV", "production")
	t.Setenv("MAILPROBE_API_KEY", "short")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestProductionRejectsDebugLogging(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"path": "mailprobe.db"},
		"log_level": "debug"
	}`)

	t.Setenv("MAILPROBE_ENV", "production")
	t.Setenv("MAILPROBE_API_KEY", "0123456789abcdef0123456789abcdef")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug logging")
}
