package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dotbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "ghcr.io/domibies/dotbox-mcp/dotnet-sandbox", cfg.Sandbox.Registry)
	assert.Equal(t, 30*time.Minute, cfg.Sandbox.IdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Sandbox.ReapInterval)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.ExecTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Sandbox.BuildTimeout)
	assert.Equal(t, "https://api.nuget.org/v3-flatcontainer", cfg.NuGet.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.NuGet.Timeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, ".dotbox", "dotbox.db"), cfg.Storage.DBPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
sandbox:
  registry: local
  idle_timeout: 10m
nuget:
  timeout: 2s
log:
  level: debug
  json: true
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Sandbox.Registry)
	assert.Equal(t, 10*time.Minute, cfg.Sandbox.IdleTimeout)
	assert.Equal(t, 2*time.Second, cfg.NuGet.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.ExecTimeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "sandbox:\n  registry: local\n")
	t.Setenv("DOTBOX_SANDBOX_REGISTRY", "registry.example.com/sandbox")
	t.Setenv("DOTBOX_SERVER_PORT", "9090")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/sandbox", cfg.Sandbox.Registry)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadBind(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")
	cfg, err := Load(path, func(v *viper.Viper) error {
		v.Set("log.level", "error")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "sandbox: [unclosed"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "sandbox:\n  idle_timeout: 0s\n"), nil)
	assert.ErrorContains(t, err, "sandbox.idle_timeout")

	_, err = Load(writeConfig(t, "server:\n  port: 70000\n"), nil)
	assert.ErrorContains(t, err, "server.port")

	_, err = Load(writeConfig(t, "sandbox:\n  registry: \" \"\n"), nil)
	assert.ErrorContains(t, err, "sandbox.registry")
}
