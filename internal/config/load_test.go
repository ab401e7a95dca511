//
//
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnonymousTalent/opsradar/internal/config"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.PushInterval)
	assert.Equal(t, 3*time.Second, cfg.Telemetry.PollInterval)
	assert.Equal(t, config.DefaultModules, cfg.Telemetry.Modules)
	assert.Equal(t, config.SourceRandom, cfg.Telemetry.Source)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Dispatch.Enabled)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", `
server:
  addr: 127.0.0.1:9000
  allowedOrigins: ["localhost:3000"]
telemetry:
  modules: [radar, core]
  pushInterval: 500ms
  source: modbus
modbus:
  address: plc.local:502
  unitId: 7
  baseAddress: 40
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"radar", "core"}, cfg.Telemetry.Modules)
	assert.Equal(t, 500*time.Millisecond, cfg.Telemetry.PushInterval)
	assert.Equal(t, uint8(7), cfg.Modbus.UnitID)
	assert.Equal(t, uint16(40), cfg.Modbus.BaseAddress)
	assert.Equal(t, config.FormatJSON, cfg.Log.Format)

	// untouched keys keep defaults
	assert.Equal(t, 3*time.Second, cfg.Telemetry.PollInterval)
}

func TestLoad_SearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o700))
	writeFile(t, filepath.Join(dir, "config"), "opsradar.yaml", "server:\n  addr: :7070\n")
	t.Chdir(dir)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.NotEmpty(t, cfg.File)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "opsradar.yaml", "telemetry:\n  pushInterval: 5s\n")
	t.Setenv("OPSRADAR_TELEMETRY_PUSHINTERVAL", "1s")
	t.Setenv("OPSRADAR_TELEMETRY_MODULES", "radar,attack")
	t.Setenv("OPSRADAR_DISPATCH_ENABLED", "false")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Telemetry.PushInterval)
	assert.Equal(t, []string{"radar", "attack"}, cfg.Telemetry.Modules)
	assert.False(t, cfg.Dispatch.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	bad := writeFile(t, dir, "bad.yaml", "telemetry: [unclosed")
	_, err = config.Load(bad)
	assert.Error(t, err)

	invalid := writeFile(t, dir, "invalid.yaml", "telemetry:\n  pushInterval: 0s\n")
	_, err = config.Load(invalid)
	assert.ErrorContains(t, err, "telemetry validation failed")
}
