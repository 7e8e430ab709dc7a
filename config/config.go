// Package config loads the tabfreeze YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Browser  BrowserConfig `yaml:"browser"`
	Store    StoreConfig   `yaml:"store"`
	API      APIConfig     `yaml:"api"`
	Watch    WatchConfig   `yaml:"watch"`
	Icons    IconsConfig   `yaml:"icons"`
	Menu     MenuConfig    `yaml:"menu"`
	DryRun   DryRunConfig  `yaml:"dry_run"`
}

// BrowserConfig controls how Chromium is reached.
type BrowserConfig struct {
	// Remote is the DevTools WebSocket URL of a running browser. Empty
	// launches a local one.
	Remote   string `yaml:"remote"`
	Headless bool   `yaml:"headless"`
	// Stealth opens force-opened tabs through go-rod/stealth.
	Stealth bool `yaml:"stealth"`
	// Bin overrides the browser binary for local launches.
	Bin         string   `yaml:"bin"`
	UserDataDir string   `yaml:"user_data_dir"`
	Flags       []string `yaml:"flags"`
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Driver        string `yaml:"driver"` // sqlite | redis | memory
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

// APIConfig controls the HTTP control surface.
type APIConfig struct {
	Addr string `yaml:"addr"`
	// TokenHash is a bcrypt hash of the bearer token. Empty disables auth.
	TokenHash string `yaml:"token_hash"`
	MaxConns  int    `yaml:"max_conns"`
}

// WatchConfig tunes the external-writer poller.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

// IconsConfig holds the action assets.
type IconsConfig struct {
	Frozen string `yaml:"frozen"`
	Normal string `yaml:"normal"`
}

// MenuConfig holds the override item title.
type MenuConfig struct {
	Title string `yaml:"title"`
}

// DryRunConfig seeds the in-memory host used by -dry-run.
type DryRunConfig struct {
	// Tabs are opened at startup, in order, so the tab routes of the
	// control API have something to act on.
	Tabs []string `yaml:"tabs"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.Browser.Headless = true
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/tabfreeze.db"
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if c.Store.Prefix == "" {
		c.Store.Prefix = "tabfreeze"
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8087"
	}
	if c.API.MaxConns <= 0 {
		c.API.MaxConns = 64
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = time.Second
	}
	if c.Watch.Debounce < 0 {
		c.Watch.Debounce = 0
	}
	if c.Icons.Frozen == "" {
		c.Icons.Frozen = "images/icons/icon128frozen.png"
	}
	if c.Icons.Normal == "" {
		c.Icons.Normal = "images/icons/icon128.png"
	}
	if c.Menu.Title == "" {
		c.Menu.Title = "Open new tab (override freeze)"
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}
