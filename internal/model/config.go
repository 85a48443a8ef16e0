package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig holds settings for the remote REST service.
type APIConfig struct {
	// BaseURL is the root URL of the service; the push channel reuses it.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every outbound REST call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// ChannelConfig holds settings for the push-notification channel.
type ChannelConfig struct {
	ReconnectAttempts   int `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelayMs    int `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	ReconnectDelayMaxMs int `mapstructure:"reconnect_delay_max_ms" yaml:"reconnect_delay_max_ms"`

	// EchoWrites re-broadcasts this client's own successful writes on the
	// channel. Disable when the service emits change events itself.
	EchoWrites bool `mapstructure:"echo_writes" yaml:"echo_writes"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`

	// RefreshIntervalSec is how often the task list is reloaded while the
	// push channel is unavailable.
	RefreshIntervalSec int `mapstructure:"refresh_interval_sec" yaml:"refresh_interval_sec"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`

	// File receives log output; empty means stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// CacheConfig holds settings for the local snapshot cache.
type CacheConfig struct {
	// Path is the sqlite file; empty disables the cache.
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig holds settings for the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Channel ChannelConfig `mapstructure:"channel" yaml:"channel"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// Timeout returns the REST timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// ReconnectDelay returns the initial reconnect delay.
func (c ChannelConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// ReconnectDelayMax returns the reconnect delay ceiling.
func (c ChannelConfig) ReconnectDelayMax() time.Duration {
	return time.Duration(c.ReconnectDelayMaxMs) * time.Millisecond
}

// RefreshInterval returns the degraded-mode refresh interval.
func (c DisplayConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

// configDir returns ~/.config/taskboard, or "." if the home directory is unknown.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "taskboard")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskboard/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultCachePath returns the default snapshot cache location.
func DefaultCachePath() string {
	return filepath.Join(configDir(), "cache.db")
}

// defaults maps every configuration key to its fallback value.
var defaults = map[string]any{
	"api.base_url":                   "http://localhost:5000",
	"api.timeout_sec":                10,
	"channel.reconnect_attempts":     5,
	"channel.reconnect_delay_ms":     1000,
	"channel.reconnect_delay_max_ms": 5000,
	"channel.echo_writes":            true,
	"display.theme":                  "default",
	"display.refresh_interval_sec":   30,
	"log.level":                      "info",
	"log.json":                       false,
	"log.file":                       "",
	"cache.path":                     "",
	"metrics.addr":                   "",
}

// newViper returns a viper instance with defaults and TASKBOARD_* env overrides.
func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("taskboard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultConfig returns the configuration used when no file exists,
// still honoring environment overrides.
func DefaultConfig() *AppConfig {
	cfg, err := decode(newViper())
	if err != nil {
		// Defaults are static; a decode failure here means a bad env override.
		return &AppConfig{}
	}
	return cfg
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = 10
	}
	if cfg.Channel.ReconnectAttempts < 0 {
		cfg.Channel.ReconnectAttempts = 0
	}
	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("channel", cfg.Channel)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)
	v.Set("cache", cfg.Cache)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
