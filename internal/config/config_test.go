package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 5, cfg.Session.InitialWindow)
	require.Equal(t, 20, cfg.Session.BatchSize)
	require.Equal(t, 2*time.Second, cfg.Session.TypingIdle)
	require.Equal(t, 3*time.Second, cfg.Session.ErrorTTL)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.BaseURL = "not-a-url"
	cfg.Session.InitialWindow = 0
	cfg.Session.ScrollIdle = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "gateway.base_url")
	require.Contains(t, err.Error(), "session.initial_window")
	require.Contains(t, err.Error(), "session.scroll_idle")
	require.Contains(t, err.Error(), "logging.format")
}

func TestLoaderPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  base_url: https://file.example.com
  token: from-file
session:
  batch_size: 30
  typing_idle: 1500ms
`), 0o644))

	t.Setenv("GATECHAT_GATEWAY_TOKEN", "from-env")
	t.Setenv("GATECHAT_SESSION_INITIAL_WINDOW", "8")

	loader := NewLoader()
	loader.SetConfigFile(path)
	loader.Set("gateway.session", "from-flag")
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, "https://file.example.com", cfg.Gateway.BaseURL)
	require.Equal(t, "from-env", cfg.Gateway.Token)
	require.Equal(t, "from-flag", cfg.Gateway.Session)
	require.Equal(t, 30, cfg.Session.BatchSize)
	require.Equal(t, 8, cfg.Session.InitialWindow)
	require.Equal(t, 1500*time.Millisecond, cfg.Session.TypingIdle)
	require.Equal(t, path, loader.ConfigFileUsed())
}

func TestLoaderMissingExplicitFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoaderRejectsInvalidValues(t *testing.T) {
	t.Setenv("GATECHAT_SESSION_BATCH_SIZE", "0")
	loader := NewLoader()
	loader.SetConfigFile(writeConfig(t, "gateway:\n  base_url: http://localhost:3000\n"))
	_, err := loader.Load()
	require.ErrorContains(t, err, "session.batch_size")
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, home, expandTilde("~"))
	require.Equal(t, filepath.Join(home, "x", "y"), expandTilde("~/x/y"))
	require.Equal(t, "/abs", expandTilde("/abs"))
	require.Equal(t, "", expandTilde(""))
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.DataDir = "/data"
	cfg.Global.ConfigDir = "/conf"
	require.Equal(t, "/data/starred.db", cfg.StarredDBPath())
	require.Equal(t, "/conf/prefs.json", cfg.PrefsPath())
	require.Equal(t, "/data/gatechat.log", cfg.LogPath())

	cfg.Global.StarredDB = "/tmp/s.db"
	require.Equal(t, "/tmp/s.db", cfg.StarredDBPath())
}

func TestEnvVar(t *testing.T) {
	require.Equal(t, "GATECHAT_GATEWAY_BASE_URL", EnvVar("gateway.base_url"))
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatechat", "config.yaml")
	cfg := DefaultConfig()
	cfg.Gateway.BaseURL = "https://gw.example.com"
	cfg.Gateway.Token = "s3cret"
	cfg.Session.ScrollIdle = 1500 * time.Millisecond

	require.NoError(t, WriteFile(path, cfg, false))
	require.ErrorIs(t, WriteFile(path, cfg, false), ErrConfigExists)
	require.NoError(t, WriteFile(path, cfg, true))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "https://gw.example.com", loaded.Gateway.BaseURL)
	require.Equal(t, "s3cret", loaded.Gateway.Token)
	require.Equal(t, 1500*time.Millisecond, loaded.Session.ScrollIdle)
}

func TestMarshalHidesToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Token = "s3cret"
	out, err := Marshal(cfg, false)
	require.NoError(t, err)
	require.NotContains(t, string(out), "s3cret")
	require.Contains(t, string(out), "base_url:")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
