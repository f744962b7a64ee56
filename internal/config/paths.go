package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "cloudbrowse"

const (
	configFileName  = "config.toml"
	tokenDBFileName = "tokens.db"
)

// xdgBase describes one XDG base directory: the variable that overrides it
// and its default below $HOME.
type xdgBase struct {
	env      string
	fallback []string
}

var (
	xdgConfig = xdgBase{env: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	xdgData   = xdgBase{env: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

// dir resolves the application directory under b for goos. macOS keeps config
// and data together in Application Support. XDG variables apply on Linux
// only; other systems use the XDG fallback layout.
func (b xdgBase) dir(goos, home string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "linux":
		if v := os.Getenv(b.env); v != "" {
			return filepath.Join(v, appName)
		}
	}

	return filepath.Join(append(append([]string{home}, b.fallback...), appName)...)
}

func (b xdgBase) resolve() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return b.dir(runtime.GOOS, home)
}

// DefaultConfigDir returns the directory holding config.toml.
func DefaultConfigDir() string { return xdgConfig.resolve() }

// DefaultDataDir returns the directory holding the token database.
func DefaultDataDir() string { return xdgData.resolve() }

// DefaultConfigPath is the config file used when neither CLOUDBROWSE_CONFIG
// nor --config names one. Empty when the home directory is unknown.
func DefaultConfigPath() string {
	return joinIfSet(DefaultConfigDir(), configFileName)
}

// DefaultTokenDBPath is the token database used when token_db is unset.
func DefaultTokenDBPath() string {
	return joinIfSet(DefaultDataDir(), tokenDBFileName)
}

func joinIfSet(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
