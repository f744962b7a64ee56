package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags. It returns
// the config together with the path it was loaded from.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	if env.TokenDB != "" {
		cfg.TokenDB = env.TokenDB
	}

	if env.TempDir != "" {
		cfg.TempDir = env.TempDir
	}

	if cli.TokenDB != nil {
		cfg.TokenDB = *cli.TokenDB
	}

	if cli.TempDir != nil {
		cfg.TempDir = *cli.TempDir
	}

	cfg.TokenDB = expandTilde(cfg.TokenDB)
	cfg.TempDir = expandTilde(cfg.TempDir)

	return cfg, cfgPath, nil
}

// ChunkBytes returns chunk_size in bytes. Callers must have validated cfg.
func (c *Config) ChunkBytes() int {
	n, err := ParseSize(c.ChunkSize)
	if err != nil {
		return 0
	}

	return int(n)
}

// ConnectTimeoutDuration returns connect_timeout, zero if unset or invalid.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return parseDurationOrZero(c.ConnectTimeout)
}

// ListingCacheDuration returns listing_cache_ttl; zero disables caching.
func (c *Config) ListingCacheDuration() time.Duration {
	return parseDurationOrZero(c.ListingCacheTTL)
}

// TokenDBPath returns token_db, falling back to the platform data directory.
func (c *Config) TokenDBPath() string {
	if c.TokenDB != "" {
		return c.TokenDB
	}

	return DefaultTokenDBPath()
}

func parseDurationOrZero(s string) time.Duration {
	if s == "" || s == "0" {
		return 0
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}

// expandTilde replaces a leading "~/" with the user's home directory.
// If os.UserHomeDir() fails, the path is returned unexpanded.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
