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
	// Point HOME at an empty dir so no user config interferes.
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp", cfg.SocketDir)
	assert.Equal(t, "/tmp", cfg.OutputDir)
	assert.Equal(t, "ACPI_DEVICE_OST", cfg.MilestoneEvent)
	assert.Equal(t, time.Second, cfg.PollInterval.Std())
	assert.Zero(t, cfg.WaitTimeout.Std())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket_dir: /run/qemu
milestone_event: DEVICE_DELETED
wait_timeout: 5m
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/run/qemu", cfg.SocketDir)
	assert.Equal(t, "DEVICE_DELETED", cfg.MilestoneEvent)
	assert.Equal(t, 5*time.Minute, cfg.WaitTimeout.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset fields keep defaults.
	assert.Equal(t, "/tmp", cfg.OutputDir)
	assert.Equal(t, time.Second, cfg.PollInterval.Std())
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_UserConfigPickedUp(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".schedscope")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("output_dir: /var/tmp\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp", cfg.OutputDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty milestone", `milestone_event: ""`},
		{"negative timeout", `wait_timeout: -1s`},
		{"zero poll interval", `poll_interval: 0s`},
		{"bad yaml", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestSocketPath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/tmp/4242.socket", cfg.SocketPath(4242))
}
