package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_TopLevel(t *testing.T) {
	path := writeTestConfig(t, `
unknown_section = "value"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestLoad_UnknownKey_Typo(t *testing.T) {
	path := writeTestConfig(t, `
chunk_sise = "64KiB"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.Contains(t, err.Error(), `did you mean "chunk_size"`)
}

func TestLoad_UnknownKey_InSection(t *testing.T) {
	path := writeTestConfig(t, "[network]\nuser_agnt = \"x\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_agent")
}

func TestLoad_UnknownKey_InProvider(t *testing.T) {
	path := writeTestConfig(t, `
[provider.box]
clinet_id = "abc"
client_secret = "def"
redirect_uri = "http://localhost:3000/browse/connect"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "clinet_id" in provider [box]`)
	assert.Contains(t, err.Error(), `did you mean "client_id"`)
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, `
completely_unrelated_key = true
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"client_i", "client_id", 1},
		{"clinet_id", "client_id", 2},
		{"token", "xyz", 5},
		{"caf\u00e9", "cafe", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b))
		})
	}
}

func TestClosestMatch_Found(t *testing.T) {
	known := []string{"client_id", "client_secret", "redirect_uri"}
	assert.Equal(t, "client_id", closestMatch("clientid", known))
	assert.Equal(t, "redirect_uri", closestMatch("redirect_url", known))
}

func TestClosestMatch_CaseInsensitive(t *testing.T) {
	assert.Equal(t, "log_level", closestMatch("Log_Level", globalKeys))
}

func TestClosestMatch_NotFound(t *testing.T) {
	known := []string{"client_id", "home"}
	assert.Equal(t, "", closestMatch("completely_unrelated", known))
}
