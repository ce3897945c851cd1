// Package config handles gatechat configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for gatechat.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Gateway connection settings
	Gateway GatewayConfig `yaml:"gateway" mapstructure:"gateway"`

	// Session tuning
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global gatechat settings.
type GlobalConfig struct {
	// DataDir is where gatechat stores caches (default: ~/.local/share/gatechat).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config and preference files live (default: ~/.config/gatechat).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`

	// StarredDB overrides the starred cache path (default: DataDir/starred.db).
	StarredDB string `yaml:"starred_db" mapstructure:"starred_db"`

	// PrefsFile overrides the UI preferences path (default: ConfigDir/prefs.json).
	PrefsFile string `yaml:"prefs_file" mapstructure:"prefs_file"`
}

// GatewayConfig describes the messaging gateway.
type GatewayConfig struct {
	// BaseURL is the gateway root, e.g. https://gw.example.com.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Token is sent as a bearer token.
	Token string `yaml:"token" mapstructure:"token"`

	// Session names the gateway session used for media uploads.
	Session string `yaml:"session" mapstructure:"session"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// RateLimit is the sustained request rate per second.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Burst is the limiter bucket size.
	Burst int `yaml:"burst" mapstructure:"burst"`
}

// SessionConfig tunes the chat session view-model.
type SessionConfig struct {
	InitialWindow        int           `yaml:"initial_window" mapstructure:"initial_window"`
	BatchSize            int           `yaml:"batch_size" mapstructure:"batch_size"`
	BottomThreshold      int           `yaml:"bottom_threshold" mapstructure:"bottom_threshold"`
	ScrollIdle           time.Duration `yaml:"scroll_idle" mapstructure:"scroll_idle"`
	TypingIdle           time.Duration `yaml:"typing_idle" mapstructure:"typing_idle"`
	ErrorTTL             time.Duration `yaml:"error_ttl" mapstructure:"error_ttl"`
	NoticeTTL            time.Duration `yaml:"notice_ttl" mapstructure:"notice_ttl"`
	MutationTimeout      time.Duration `yaml:"mutation_timeout" mapstructure:"mutation_timeout"`
	SourceLanguage       string        `yaml:"source_language" mapstructure:"source_language"`
	TranslateConcurrency int           `yaml:"translate_concurrency" mapstructure:"translate_concurrency"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The TUI always logs to a file.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// PollInterval is how often the open chat is refreshed from the gateway.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// Theme is the color theme (default, dark, light).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows timestamps in the UI.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`

	// RelativeTime renders timestamps as "3 minutes ago".
	RelativeTime bool `yaml:"relative_time" mapstructure:"relative_time"`

	// BottomThreshold replaces session.bottom_threshold in the terminal,
	// where distance is counted in rows.
	BottomThreshold int `yaml:"bottom_threshold" mapstructure:"bottom_threshold"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "gatechat"),
			ConfigDir: filepath.Join(homeDir, ".config", "gatechat"),
		},
		Gateway: GatewayConfig{
			BaseURL:   "http://localhost:3000",
			Session:   "default",
			Timeout:   20 * time.Second,
			RateLimit: 10,
			Burst:     20,
		},
		Session: SessionConfig{
			InitialWindow:        5,
			BatchSize:            20,
			BottomThreshold:      80,
			ScrollIdle:           2 * time.Second,
			TypingIdle:           2 * time.Second,
			ErrorTTL:             3 * time.Second,
			NoticeTTL:            3 * time.Second,
			MutationTimeout:      15 * time.Second,
			SourceLanguage:       "auto",
			TranslateConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		TUI: TUIConfig{
			PollInterval:    3 * time.Second,
			Theme:           "default",
			ShowTimestamps:  true,
			RelativeTime:    true,
			BottomThreshold: 3,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		errs = append(errs, fmt.Errorf("gateway.base_url is required"))
	} else if u, err := url.Parse(c.Gateway.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("gateway.base_url must be an absolute URL"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout must be positive"))
	}
	if c.Gateway.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("gateway.rate_limit must be positive"))
	}
	if c.Gateway.Burst < 1 {
		errs = append(errs, fmt.Errorf("gateway.burst must be at least 1"))
	}

	s := c.Session
	if s.InitialWindow < 1 {
		errs = append(errs, fmt.Errorf("session.initial_window must be at least 1"))
	}
	if s.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("session.batch_size must be at least 1"))
	}
	if s.BottomThreshold < 1 {
		errs = append(errs, fmt.Errorf("session.bottom_threshold must be at least 1"))
	}
	for _, timing := range []struct {
		name string
		d    time.Duration
	}{
		{"session.scroll_idle", s.ScrollIdle},
		{"session.typing_idle", s.TypingIdle},
		{"session.error_ttl", s.ErrorTTL},
		{"session.notice_ttl", s.NoticeTTL},
		{"session.mutation_timeout", s.MutationTimeout},
	} {
		if timing.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", timing.name))
		}
	}
	if s.TranslateConcurrency < 1 {
		errs = append(errs, fmt.Errorf("session.translate_concurrency must be at least 1"))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console"))
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		errs = append(errs, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}
	if c.TUI.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("tui.poll_interval must be at least 100ms"))
	}
	if c.TUI.BottomThreshold < 1 {
		errs = append(errs, fmt.Errorf("tui.bottom_threshold must be at least 1"))
	}

	return errors.Join(errs...)
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// StarredDBPath returns the full starred cache path.
func (c *Config) StarredDBPath() string {
	if c.Global.StarredDB != "" {
		return c.Global.StarredDB
	}
	return filepath.Join(c.Global.DataDir, "starred.db")
}

// PrefsPath returns the full preferences path.
func (c *Config) PrefsPath() string {
	if c.Global.PrefsFile != "" {
		return c.Global.PrefsFile
	}
	return filepath.Join(c.Global.ConfigDir, "prefs.json")
}

// LogPath returns the log file path, defaulting to DataDir/gatechat.log.
func (c *Config) LogPath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Global.DataDir, "gatechat.log")
}
