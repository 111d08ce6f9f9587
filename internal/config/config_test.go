package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RUNTTY_BRIDGE_URL", "RUNTTY_BRIDGE_PATH", "RUNTTY_TOKEN",
		"RUNTTY_COMMAND", "RUNTTY_CALL_TIMEOUT", "RUNTTY_LOG_LEVEL",
		"RUNTTY_NO_SYNC", "RUNTTY_DEBUG", "DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("RUNTTY_HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, home, cfg.RuntimeHome)
	require.Equal(t, DefaultBridgePath, cfg.BridgePath)
	require.Equal(t, DefaultCallTimeout, cfg.CallTimeout)
	require.True(t, cfg.SyncOnConnect)
	require.Empty(t, cfg.BridgeURL)
	require.Zero(t, cfg.CommandIndex)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("RUNTTY_HOME", home)

	file := `bridge_url: http://localhost:7700
bridge_path: /v1/bridge
command: 2
call_timeout: 3s
log_level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte(file), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:7700", cfg.BridgeURL)
	require.Equal(t, "/v1/bridge", cfg.BridgePath)
	require.Equal(t, 2, cfg.CommandIndex)
	require.Equal(t, 3*time.Second, cfg.CallTimeout)
	require.Equal(t, "debug", cfg.LogLevel)

	t.Setenv("RUNTTY_BRIDGE_URL", "http://127.0.0.1:9000/")
	t.Setenv("RUNTTY_COMMAND", "5")
	t.Setenv("RUNTTY_NO_SYNC", "1")

	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9000", cfg.BridgeURL)
	require.Equal(t, 5, cfg.CommandIndex)
	require.False(t, cfg.SyncOnConnect)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("RUNTTY_HOME", t.TempDir())

	t.Setenv("RUNTTY_COMMAND", "first")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("RUNTTY_COMMAND", "-1")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("RUNTTY_COMMAND", "")
	t.Setenv("RUNTTY_BRIDGE_URL", "ws://nope")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("RUNTTY_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte("command: [oops"), 0600))

	_, err := Load()
	require.Error(t, err)
}
