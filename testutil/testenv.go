// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests, which drive the built binary
// rather than internal/ packages, can use it.
package testutil

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// LoadDotEnv sets variables from a KEY=VALUE file such as the module's .env.
// Blank lines, "#" comments and an "export " prefix are allowed, and values
// may be quoted. Variables already set in the environment win. A missing
// file is ignored so CI can set everything directly.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}

		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
}

func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}

	line = strings.TrimPrefix(line, "export ")

	key, value, ok := strings.Cut(line, "=")
	key = strings.TrimSpace(key)

	if !ok || key == "" {
		return "", "", false
	}

	return key, strings.Trim(strings.TrimSpace(value), `"'`), true
}

// RequireEnv returns the value of name, or skips the test when it is unset.
// Live-provider tests use it so a plain "go test -tags e2e" stays offline.
func RequireEnv(t testing.TB, name string) string {
	t.Helper()

	v := os.Getenv(name)
	if v == "" {
		t.Skipf("%s not set", name)
	}

	return v
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

