package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GATECHAT_GATEWAY_TOKEN.
const EnvPrefix = "GATECHAT"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.ConfigDir = expandTilde(cfg.Global.ConfigDir)
	cfg.Global.StarredDB = expandTilde(cfg.Global.StarredDB)
	cfg.Global.PrefsFile = expandTilde(cfg.Global.PrefsFile)
	cfg.Logging.File = expandTilde(cfg.Logging.File)
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "gatechat"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "gatechat"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)

	// Viper's Unmarshal ignores env vars for nested keys unless they are bound.
	bindEnvVars(v)
	v.AutomaticEnv()
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("global.data_dir", cfg.Global.DataDir)
	v.SetDefault("global.config_dir", cfg.Global.ConfigDir)
	v.SetDefault("global.starred_db", cfg.Global.StarredDB)
	v.SetDefault("global.prefs_file", cfg.Global.PrefsFile)

	v.SetDefault("gateway.base_url", cfg.Gateway.BaseURL)
	v.SetDefault("gateway.token", cfg.Gateway.Token)
	v.SetDefault("gateway.session", cfg.Gateway.Session)
	v.SetDefault("gateway.timeout", cfg.Gateway.Timeout)
	v.SetDefault("gateway.rate_limit", cfg.Gateway.RateLimit)
	v.SetDefault("gateway.burst", cfg.Gateway.Burst)

	v.SetDefault("session.initial_window", cfg.Session.InitialWindow)
	v.SetDefault("session.batch_size", cfg.Session.BatchSize)
	v.SetDefault("session.bottom_threshold", cfg.Session.BottomThreshold)
	v.SetDefault("session.scroll_idle", cfg.Session.ScrollIdle)
	v.SetDefault("session.typing_idle", cfg.Session.TypingIdle)
	v.SetDefault("session.error_ttl", cfg.Session.ErrorTTL)
	v.SetDefault("session.notice_ttl", cfg.Session.NoticeTTL)
	v.SetDefault("session.mutation_timeout", cfg.Session.MutationTimeout)
	v.SetDefault("session.source_language", cfg.Session.SourceLanguage)
	v.SetDefault("session.translate_concurrency", cfg.Session.TranslateConcurrency)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("tui.poll_interval", cfg.TUI.PollInterval)
	v.SetDefault("tui.theme", cfg.TUI.Theme)
	v.SetDefault("tui.show_timestamps", cfg.TUI.ShowTimestamps)
	v.SetDefault("tui.relative_time", cfg.TUI.RelativeTime)
	v.SetDefault("tui.bottom_threshold", cfg.TUI.BottomThreshold)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set overrides a key, taking precedence over file and env.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Viper returns the underlying Viper instance, used to bind CLI flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// envBindings lists every key that accepts a GATECHAT_* override.
var envBindings = []string{
	"global.data_dir",
	"global.config_dir",
	"global.starred_db",
	"global.prefs_file",
	"gateway.base_url",
	"gateway.token",
	"gateway.session",
	"gateway.timeout",
	"gateway.rate_limit",
	"gateway.burst",
	"session.initial_window",
	"session.batch_size",
	"session.bottom_threshold",
	"session.scroll_idle",
	"session.typing_idle",
	"session.error_ttl",
	"session.notice_ttl",
	"session.mutation_timeout",
	"session.source_language",
	"session.translate_concurrency",
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"metrics.enabled",
	"metrics.addr",
	"tui.poll_interval",
	"tui.theme",
	"tui.show_timestamps",
	"tui.relative_time",
	"tui.bottom_threshold",
}

// EnvVar returns the environment variable bound to key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func bindEnvVars(v *viper.Viper) {
	for _, key := range envBindings {
		_ = v.BindEnv(key, EnvVar(key))
	}
}
