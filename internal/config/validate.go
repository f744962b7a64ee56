package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Validation range constants.
const (
	minChunkBytes     = 1024             // 1 KiB
	maxChunkBytes     = 64 * 1024 * 1024 // 64 MiB
	minConnectTimeout = 1 * time.Second
)

// providerKeyPattern restricts provider keys to characters that survive the
// "<key>:<id>" location syntax and TOML bare keys.
var providerKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
	knownDrivers    = map[string]bool{DriverBox: true, DriverFileSystem: true}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateProviders(cfg)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateTransfers(&cfg.TransfersConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateBrowse(&cfg.BrowseConfig)...)

	return errors.Join(errs...)
}

func validateProviders(cfg *Config) []error {
	var errs []error

	for _, key := range cfg.ProviderKeys() {
		errs = append(errs, validateProvider(key, cfg.Providers[key])...)
	}

	return errs
}

func validateProvider(key string, p ProviderConfig) []error {
	var errs []error

	if !providerKeyPattern.MatchString(key) {
		errs = append(errs, fmt.Errorf("provider [%s]: key must match %s", key, providerKeyPattern))
	}

	driver := p.EffectiveDriver(key)
	if !knownDrivers[driver] {
		errs = append(errs, fmt.Errorf("provider [%s]: unknown driver %q", key, driver))

		return errs
	}

	switch driver {
	case DriverFileSystem:
		if p.Home == "" {
			errs = append(errs, fmt.Errorf("provider [%s]: home: required for driver %q", key, driver))
		}
	case DriverBox:
		if p.RedirectURI != "" {
			if _, err := url.Parse(p.RedirectURI); err != nil {
				errs = append(errs, fmt.Errorf("provider [%s]: redirect_uri: %w", key, err))
			}
		}

		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Errorf("provider [%s]: base_url: must be an absolute URL, got %q", key, p.BaseURL))
			}
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	n, err := ParseSize(t.ChunkSize)
	if err != nil {
		return []error{fmt.Errorf("chunk_size: %w", err)}
	}

	if n < minChunkBytes || n > maxChunkBytes {
		return []error{fmt.Errorf("chunk_size: must be between 1KiB and 64MiB, got %q", t.ChunkSize)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.ConnectTimeout)
	if err != nil {
		return []error{fmt.Errorf("connect_timeout: invalid duration %q: %w", n.ConnectTimeout, err)}
	}

	if d < minConnectTimeout {
		return []error{fmt.Errorf("connect_timeout: must be at least %s, got %s", minConnectTimeout, d)}
	}

	return nil
}

func validateBrowse(b *BrowseConfig) []error {
	if b.ListingCacheTTL == "" || b.ListingCacheTTL == "0" {
		return nil
	}

	d, err := time.ParseDuration(b.ListingCacheTTL)
	if err != nil {
		return []error{fmt.Errorf("listing_cache_ttl: invalid duration %q: %w", b.ListingCacheTTL, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("listing_cache_ttl: must be non-negative, got %s", d)}
	}

	return nil
}
