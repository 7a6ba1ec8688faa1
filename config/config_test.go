package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Scheduler.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Engine.SessionTimeout)
	assert.Equal(t, 90*time.Second, cfg.Engine.BookingTimeout)
	assert.Equal(t, 0.6, cfg.Captcha.MinConfidence)
	assert.Equal(t, 4, cfg.Captcha.Workers)
	assert.Zero(t, cfg.Portal.Timeout, "portal calls are bounded by engine step timeouts")
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VISAD_DATABASE_DRIVER", "sqlite")
	t.Setenv("VISAD_DATABASE_DSN", "file:test.db")
	t.Setenv("VISAD_PORTAL_URL", "http://sidecar:8070")

	cfg, err := Load(writeConfig(t, "database:\n  driver: postgres\n  dsn: ignored\nengine:\n  scan_timeout_seconds: 12\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
	assert.Equal(t, "http://sidecar:8070", cfg.Portal.URL)
	assert.Equal(t, 12*time.Second, cfg.Engine.ScanTimeout)
}

func TestPortalTimeoutNeverUndercutsEngineSteps(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine:\n  booking_timeout_seconds: 90\nportal:\n  timeout_seconds: 30\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Portal.Timeout)

	cfg, err = Load(writeConfig(t, "portal:\n  timeout_seconds: 300\n"))
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, cfg.Portal.Timeout)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Server.Port)
	assert.True(t, cfg.Engine.BookingEnabled)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [\n"))
	assert.Error(t, err)
}
