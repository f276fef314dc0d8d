package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("SITECAST_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_StorageEnvOverride(t *testing.T) {
	t.Setenv("SITECAST_STORAGE_BACKEND", "SurrealDB")
	t.Setenv("SITECAST_STORAGE_ADDRESS", "ws://db:8000/rpc")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, "surrealdb", cfg.Storage.Backend)
	assert.Equal(t, "ws://db:8000/rpc", cfg.Storage.Address)
}

func TestConfig_AuthEnabledEnvOverride(t *testing.T) {
	t.Setenv("SITECAST_AUTH_ENABLED", "false")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadConfig_MergesFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
environment = "staging"

[server]
port = 7000

[forecast]
workers = 4
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 7100
`), 0644))

	cfg, err := LoadConfig(base, override, filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Forecast.Workers)
	// untouched defaults survive
	assert.Equal(t, 24, cfg.Forecast.DefaultHorizon)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_ValidateRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	missing := cfg.ValidateRequired()
	assert.ElementsMatch(t, []string{"auth.jwt_secret", "auth.admin_password"}, missing)

	cfg.Auth.JWTSecret = "real-secret"
	cfg.Auth.AdminPassword = "hunter22"
	assert.Empty(t, cfg.ValidateRequired())

	cfg.Auth.Enabled = false
	cfg.Auth.JWTSecret = ""
	assert.Empty(t, cfg.ValidateRequired())
}

func TestConfig_DurationFallbacks(t *testing.T) {
	auth := AuthConfig{TokenExpiry: "not-a-duration"}
	assert.Equal(t, 24*time.Hour, auth.GetTokenExpiry())

	fc := ForecastConfig{CleanupInterval: "15m"}
	assert.Equal(t, 15*time.Minute, fc.GetCleanupInterval())
	fc.CleanupInterval = ""
	assert.Equal(t, time.Hour, fc.GetCleanupInterval())
	assert.Equal(t, 2, fc.GetWorkers())

	assert.Equal(t, 15*time.Second, fc.GetRequeueInterval())
	fc.RequeueInterval = "-1s"
	assert.Equal(t, 15*time.Second, fc.GetRequeueInterval())
	fc.RequeueInterval = "250ms"
	assert.Equal(t, 250*time.Millisecond, fc.GetRequeueInterval())
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.IsProduction())
	cfg.Environment = " Production "
	assert.True(t, cfg.IsProduction())
}
