// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cloudbrowse. Values resolve through
// a four-layer chain (defaults -> config file -> environment -> CLI flags).
// Each [provider.<key>] section configures one provider instance.
package config

import (
	"slices"

	"github.com/tonimelisma/cloudbrowse/internal/provider"
)

// Driver names accepted in a provider section. A section without a driver
// key uses its own key as the driver name.
const (
	DriverBox        = "box"
	DriverFileSystem = "file_system"
)

// Config is the top-level configuration structure parsed from a TOML file.
// Global settings are flat top-level keys; the embedded structs only group
// them for readability.
type Config struct {
	Providers map[string]ProviderConfig `toml:"provider"`
	LoggingConfig
	TransfersConfig
	NetworkConfig
	BrowseConfig
}

// ProviderConfig is one [provider.<key>] section.
type ProviderConfig struct {
	Driver       string `toml:"driver"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	Home         string `toml:"home"`
	BaseURL      string `toml:"base_url"`
}

// LoggingConfig controls log output: level and handler format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// TransfersConfig controls the retriever.
type TransfersConfig struct {
	ChunkSize          string `toml:"chunk_size"`
	TempDir            string `toml:"temp_dir"`
	RejectExpiredLinks bool   `toml:"reject_expired_links"`
}

// NetworkConfig controls the shared HTTP client.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// BrowseConfig controls token persistence and listing caching.
type BrowseConfig struct {
	TokenDB         string `toml:"token_db"`
	ListingCacheTTL string `toml:"listing_cache_ttl"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	TokenDB    *string // --token-db flag
	TempDir    *string // --temp-dir flag
}

// EffectiveDriver returns the driver for the section registered under key.
func (p ProviderConfig) EffectiveDriver(key string) string {
	if p.Driver != "" {
		return p.Driver
	}

	return key
}

// ToProvider converts the section into the driver-facing config. Home
// and BaseURL travel as driver options.
func (p ProviderConfig) ToProvider() provider.Config {
	opts := map[string]string{}

	if p.Home != "" {
		opts[optionHome] = expandTilde(p.Home)
	}

	if p.BaseURL != "" {
		opts[optionBaseURL] = p.BaseURL
	}

	return provider.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURI:  p.RedirectURI,
		Options:      opts,
	}
}

// ProviderKeys returns the configured provider keys in sorted order.
func (c *Config) ProviderKeys() []string {
	keys := make([]string, 0, len(c.Providers))
	for k := range c.Providers {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
