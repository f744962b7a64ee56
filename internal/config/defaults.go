package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultChunkSize       = "64KiB"
	defaultConnectTimeout  = "10s"
	defaultListingCacheTTL = "0"
)

// Driver option names, mirrored from the drivers that consume them.
const (
	optionHome    = "home"
	optionBaseURL = "base_url"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Providers:       make(map[string]ProviderConfig),
		LoggingConfig:   defaultLoggingConfig(),
		TransfersConfig: defaultTransfersConfig(),
		NetworkConfig:   defaultNetworkConfig(),
		BrowseConfig:    defaultBrowseConfig(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		ChunkSize: defaultChunkSize,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
	}
}

func defaultBrowseConfig() BrowseConfig {
	return BrowseConfig{
		ListingCacheTTL: defaultListingCacheTTL,
	}
}
