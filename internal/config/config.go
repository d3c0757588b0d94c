// Package config holds bsdb's tunable configuration: cache size, tree
// order, free-list scan depth, and logging. It is deliberately small —
// the on-disk page size is a compile-time constant (spec.md 6.3) and is
// not part of this struct.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// MinCacheBytes is the smallest cache allocation the page cache accepts.
	MinCacheBytes = 256 * 1024
	// DefaultCacheBytes is used when Config.CacheBytes is zero.
	DefaultCacheBytes = 1024 * 1024
	// DefaultTreeOrder is used when Config.TreeOrder is zero.
	DefaultTreeOrder = 5
	// MinTreeOrder is the smallest tree order the index tree accepts.
	MinTreeOrder = 3
)

// Config describes how a database handle should be opened and tuned.
type Config struct {
	// CacheBytes is the target size, in bytes, of the page cache. Values
	// below MinCacheBytes are raised to MinCacheBytes.
	CacheBytes int `yaml:"cache_bytes"`

	// ReadOnly opens the backing file without allowing mutation.
	ReadOnly bool `yaml:"read_only"`

	// TreeOrder is the B+ tree order M (spec.md 3.4). Only meaningful on
	// the very first Open of a new file; on reopen the file's own
	// recorded order is authoritative and this value is checked against it.
	TreeOrder int `yaml:"tree_order"`

	// FreeLookupDepth bounds how many free-list entries create_record
	// scans before giving up the first-fit search. Zero means unbounded.
	FreeLookupDepth int `yaml:"free_lookup_depth"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// LogPretty enables console-formatted (rather than JSON) log output.
	LogPretty bool `yaml:"log_pretty"`
}

// Default returns the configuration bsdb uses when the caller supplies none.
func Default() *Config {
	return &Config{
		CacheBytes:      DefaultCacheBytes,
		ReadOnly:        false,
		TreeOrder:       DefaultTreeOrder,
		FreeLookupDepth: 0,
		LogLevel:        "info",
		LogPretty:       false,
	}
}

// Normalize fills in zero-valued fields with their defaults and clamps
// CacheBytes/TreeOrder to their floors.
func (c *Config) Normalize() {
	if c.CacheBytes <= 0 {
		c.CacheBytes = DefaultCacheBytes
	}
	if c.CacheBytes < MinCacheBytes {
		c.CacheBytes = MinCacheBytes
	}
	if c.TreeOrder <= 0 {
		c.TreeOrder = DefaultTreeOrder
	}
	if c.TreeOrder < MinTreeOrder {
		c.TreeOrder = MinTreeOrder
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads a YAML configuration file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the configuration to disk as YAML, creating parent
// directories as needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
