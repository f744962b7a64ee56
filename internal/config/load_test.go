package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	home := t.TempDir()

	path := writeTestConfig(t, `
log_level = "debug"
log_format = "json"

chunk_size = "1MiB"
temp_dir = "/var/tmp/cloudbrowse"
reject_expired_links = true

connect_timeout = "30s"
user_agent = "cloudbrowse-test/1.0"

token_db = "/var/lib/cloudbrowse/tokens.db"
listing_cache_ttl = "5m"

[provider.box]
client_id = "abc123"
client_secret = "s3cret"
redirect_uri = "/browse/connect"
base_url = "http://localhost:3000"

[provider.local]
driver = "file_system"
home = "`+filepath.ToSlash(home)+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 1048576, cfg.ChunkBytes())
	assert.Equal(t, "/var/tmp/cloudbrowse", cfg.TempDir)
	assert.True(t, cfg.RejectExpiredLinks)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeoutDuration())
	assert.Equal(t, "cloudbrowse-test/1.0", cfg.UserAgent)
	assert.Equal(t, "/var/lib/cloudbrowse/tokens.db", cfg.TokenDBPath())
	assert.Equal(t, 5*time.Minute, cfg.ListingCacheDuration())

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, []string{"box", "local"}, cfg.ProviderKeys())

	boxCfg := cfg.Providers["box"]
	assert.Equal(t, "box", boxCfg.EffectiveDriver("box"))
	assert.Equal(t, "abc123", boxCfg.ClientID)
	assert.Equal(t, "s3cret", boxCfg.ClientSecret)
	assert.Equal(t, "/browse/connect", boxCfg.RedirectURI)
	assert.Equal(t, "http://localhost:3000", boxCfg.BaseURL)

	local := cfg.Providers["local"]
	assert.Equal(t, DriverFileSystem, local.EffectiveDriver("local"))
	assert.Equal(t, filepath.ToSlash(home), local.Home)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `log_level = "warn"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, "64KiB", cfg.ChunkSize)
	assert.Equal(t, "10s", cfg.ConnectTimeout)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `log_level = `)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
log_level = "loud"
chunk_size = "lots"

[provider."bad key"]
driver = "box"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "chunk_size")
	assert.Contains(t, err.Error(), "provider [bad key]")
}

func TestLoad_UnknownDriver(t *testing.T) {
	path := writeTestConfig(t, `
[provider.dropbox]
client_id = "x"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown driver "dropbox"`)
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOrDefault_ExistingFile(t *testing.T) {
	path := writeTestConfig(t, `user_agent = "ua"`)

	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, "ua", cfg.UserAgent)
}

func TestResolve_PathPrecedence(t *testing.T) {
	envPath := writeTestConfig(t, `user_agent = "from-env"`)
	cliPath := writeTestConfig(t, `user_agent = "from-cli"`)

	cfg, path, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, envPath, path)
	assert.Equal(t, "from-env", cfg.UserAgent)

	cfg, path, err = Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, cliPath, path)
	assert.Equal(t, "from-cli", cfg.UserAgent)
}

func TestResolve_EnvAndCLIOverrides(t *testing.T) {
	path := writeTestConfig(t, `
token_db = "/from/file.db"
temp_dir = "/from/file"
`)

	cfg, _, err := Resolve(EnvOverrides{ConfigPath: path, TokenDB: "/from/env.db"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.TokenDB)
	assert.Equal(t, "/from/file", cfg.TempDir)

	cliTemp := "/from/cli"
	cfg, _, err = Resolve(
		EnvOverrides{ConfigPath: path, TokenDB: "/from/env.db", TempDir: "/from/env"},
		CLIOverrides{TempDir: &cliTemp},
	)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.TokenDB)
	assert.Equal(t, "/from/cli", cfg.TempDir)
}

func TestResolve_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeTestConfig(t, `token_db = "~/tokens.db"`)

	cfg, _, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "tokens.db"), cfg.TokenDB)
}

func TestResolve_InvalidFile(t *testing.T) {
	path := writeTestConfig(t, `log_level = "loud"`)

	_, gotPath, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.Error(t, err)
	assert.Equal(t, path, gotPath)
}
