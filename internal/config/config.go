package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir  = ".rostershield"
	DefaultConfigFile = "config.yaml"
	DefaultLogFile    = "audit.jsonl"
	DefaultDBFile     = "roster.db"
	DefaultListenAddr = "127.0.0.1:8787"
	DefaultOwnerID    = "default"
	DefaultCacheTTL   = 5 * time.Minute
)

type Config struct {
	ConfigDir string `yaml:"-" toml:"-"`
	OwnerID   string `yaml:"owner_id" toml:"owner_id"`
	LogPath   string `yaml:"audit_log" toml:"audit_log"`

	Database DatabaseConfig `yaml:"database" toml:"database"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	API      APIConfig      `yaml:"api" toml:"api"`
}

type DatabaseConfig struct {
	// DSN is a postgres:// URL or a SQLite path (optionally sqlite:// prefixed).
	DSN string `yaml:"dsn" toml:"dsn"`
}

// RedisConfig enables the shared course-context store. Empty URL keeps
// contexts in process memory.
type RedisConfig struct {
	URL string `yaml:"url" toml:"url"`
}

type CacheConfig struct {
	// TTL is a Go duration string such as "5m".
	TTL string `yaml:"ttl" toml:"ttl"`
}

type APIConfig struct {
	Listen         string `yaml:"listen" toml:"listen"`
	MetricsEnabled *bool  `yaml:"metrics" toml:"metrics"`
}

// CacheTTL returns the parsed roster cache TTL.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Cache.TTL == "" {
		return DefaultCacheTTL, nil
	}
	ttl, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid cache ttl %q: %w", c.Cache.TTL, err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("invalid cache ttl %q: must be positive", c.Cache.TTL)
	}
	return ttl, nil
}

// MetricsEnabled reports whether /metrics is served. Defaults to true.
func (c *Config) MetricsEnabled() bool {
	return c.API.MetricsEnabled == nil || *c.API.MetricsEnabled
}

// Load reads the config file at path, or config.yaml / config.toml from
// ~/.rostershield when path is empty. A missing default file yields defaults.
// A non-empty logPath overrides the audit log location.
func Load(path, logPath string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return load(filepath.Join(homeDir, DefaultConfigDir), path, logPath)
}

func load(configDir, path, logPath string) (*Config, error) {
	if err := ensureDir(configDir); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path == "" {
		path = findDefault(configDir)
	}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ConfigDir = configDir

	if logPath != "" {
		cfg.LogPath = logPath
	}
	applyDefaults(cfg)

	if _, err := cfg.CacheTTL(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findDefault(configDir string) string {
	for _, name := range []string{DefaultConfigFile, "config.yml", "config.toml"} {
		p := filepath.Join(configDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.OwnerID == "" {
		cfg.OwnerID = DefaultOwnerID
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(cfg.ConfigDir, DefaultLogFile)
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.ConfigDir, DefaultDBFile)
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = DefaultListenAddr
	}
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
