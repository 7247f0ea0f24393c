package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the vec0ctl configuration file.
//
// Example:
//
//	database: ./vectors.sqlite
//	module: vec0
//	storage:
//	  badger_dir: ./vectors.badger
//	memory_limit: 268435456
//	default_k: 10
//	log:
//	  level: info
//	  format: text
type Config struct {
	// Database is the SQLite DSN.
	Database string `yaml:"database"`
	// Module is the name the vec0 module is registered under.
	Module  string        `yaml:"module"`
	Storage StorageConfig `yaml:"storage"`
	// MemoryLimit caps the bytes reserved by tables and queries; 0 is unlimited.
	MemoryLimit int64     `yaml:"memory_limit"`
	DefaultK    int       `yaml:"default_k"`
	Log         LogConfig `yaml:"log"`
}

// StorageConfig selects the persistence backend. An empty BadgerDir keeps
// table state in the host database file, or in memory for :memory:
// databases.
type StorageConfig struct {
	BadgerDir string `yaml:"badger_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Database: ":memory:",
		Module:   "vec0",
		DefaultK: 10,
		Log:      LogConfig{Level: "warn", Format: "text"},
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error
// unless required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	switch {
	case c.Database == "":
		return errors.New("database is required")
	case c.Module == "":
		return errors.New("module is required")
	case c.MemoryLimit < 0:
		return fmt.Errorf("memory_limit must not be negative, got %d", c.MemoryLimit)
	case c.DefaultK <= 0:
		return fmt.Errorf("default_k must be positive, got %d", c.DefaultK)
	}
	return nil
}
