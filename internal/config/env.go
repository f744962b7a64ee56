package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "CLOUDBROWSE_CONFIG"
	EnvTokenDB = "CLOUDBROWSE_TOKEN_DB"
	EnvTempDir = "CLOUDBROWSE_TEMP_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // CLOUDBROWSE_CONFIG: override config file path
	TokenDB    string // CLOUDBROWSE_TOKEN_DB: token database path
	TempDir    string // CLOUDBROWSE_TEMP_DIR: download staging directory
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		TokenDB:    os.Getenv(EnvTokenDB),
		TempDir:    os.Getenv(EnvTempDir),
	}
}
