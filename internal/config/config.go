package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables overriding the config files.
const (
	EnvDriver    = "EVENTSOUND_DRIVER"
	EnvTheme     = "EVENTSOUND_THEME"
	EnvLogLevel  = "EVENTSOUND_LOG_LEVEL"
	EnvCachePath = "EVENTSOUND_CACHE_PATH"
)

type Config struct {
	Driver string `koanf:"driver"` // "auto", "pulse", "speaker" or "null"

	Theme   ThemeConfig   `koanf:"theme"`
	Cache   CacheConfig   `koanf:"cache"`
	Log     LogConfig     `koanf:"log"`
	Desktop DesktopConfig `koanf:"desktop"`

	// Extra properties applied to every context at open, e.g. application.name.
	Properties map[string]string `koanf:"properties"`
}

// ThemeConfig selects the sound theme.
type ThemeConfig struct {
	Name          string   `koanf:"name"`           // empty: desktop setting, then "freedesktop"
	OutputProfile string   `koanf:"output_profile"` // default: "stereo"
	Locale        string   `koanf:"locale"`         // default: LC_ALL / LC_MESSAGES / LANG
	Dirs          []string `koanf:"dirs"`           // extra base directories searched first
}

// CacheConfig holds the sound lookup cache settings.
type CacheConfig struct {
	Enabled *bool  `koanf:"enabled"`  // default: true
	Path    string `koanf:"path"`     // default: $XDG_CACHE_HOME/eventsound/lookup.db
	TTLDays int    `koanf:"ttl_days"` // default: 30
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"` // default: "warn"
	File  string `koanf:"file"`  // empty: stderr
	JSON  bool   `koanf:"json"`
}

// DesktopConfig controls desktop settings integration.
type DesktopConfig struct {
	UsePortal *bool `koanf:"use_portal"` // default: true
}

func Load() (*Config, error) {
	return LoadFrom(getConfigPaths()...)
}

// LoadFrom loads the given files in order (last wins), skipping missing
// ones, then applies .env and environment overrides.
func LoadFrom(paths ...string) (*Config, error) {
	// property keys contain dots
	k := koanf.New("/")

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Driver: "auto",
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnv(cfg)

	for i, dir := range cfg.Theme.Dirs {
		cfg.Theme.Dirs[i] = expandPath(dir)
	}
	cfg.Cache.Path = expandPath(cfg.Cache.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvDriver); ok && v != "" {
		cfg.Driver = v
	}
	if v, ok := os.LookupEnv(EnvTheme); ok && v != "" {
		cfg.Theme.Name = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvCachePath); ok && v != "" {
		cfg.Cache.Path = v
	}
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. $XDG_CONFIG_HOME/eventsound/config.toml
	paths = append(paths, filepath.Join(xdg.ConfigHome, "eventsound", "config.toml"))

	// 2. ./eventsound.toml (pwd, highest priority)
	paths = append(paths, "eventsound.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetThemeConfig returns the theme configuration with defaults applied.
func (c *Config) GetThemeConfig() ThemeConfig {
	cfg := c.Theme
	if cfg.OutputProfile == "" {
		cfg.OutputProfile = "stereo"
	}
	if cfg.Locale == "" {
		cfg.Locale = systemLocale()
	}
	return cfg
}

// GetCacheConfig returns the cache configuration with defaults applied.
func (c *Config) GetCacheConfig() CacheConfig {
	cfg := c.Cache
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}
	if cfg.TTLDays <= 0 {
		cfg.TTLDays = 30
	}
	return cfg
}

// CacheEnabled reports whether the lookup cache is on.
func (c CacheConfig) CacheEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// GetLogConfig returns the log configuration with defaults applied.
func (c *Config) GetLogConfig() LogConfig {
	cfg := c.Log
	if cfg.Level == "" {
		cfg.Level = "warn"
	}
	return cfg
}

// UsePortal reports whether desktop settings are read over D-Bus.
func (c *Config) UsePortal() bool {
	return c.Desktop.UsePortal == nil || *c.Desktop.UsePortal
}

func systemLocale() string {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return "C"
}
