package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr string `yaml:"addr"`
	// AllowUnlisted forwards requests for entities missing from the tenant
	// policy instead of rejecting them.
	AllowUnlisted bool          `yaml:"allow_unlisted"`
	Storage       StorageConfig `yaml:"storage"`
}

type StorageConfig struct {
	// Driver is one of postgres, sqlite3 or pebble.
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	// Path is the database file of sqlite3 or the directory of pebble.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	MaxConns int32  `yaml:"max_conns"`
}

func DefaultConfig() Config {
	return Config{
		Addr: ":4000",
		Storage: StorageConfig{
			Driver: "sqlite3",
			Path:   "tenantscope.db",
		},
	}
}

// LoadConfig reads a YAML file on top of [DefaultConfig]. Environment
// variables in the file are expanded.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("config: storage.database_url is required for postgres")
		}
	case "sqlite3", "pebble":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: storage.path is required for %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
