package browser

import (
	"log/slog"
	"net/http"

	"github.com/tonimelisma/cloudbrowse/internal/provider"
	"github.com/tonimelisma/cloudbrowse/internal/provider/box"
	"github.com/tonimelisma/cloudbrowse/internal/provider/filesystem"
)

// Driver names accepted in ProviderSpec.Driver.
const (
	DriverBox        = "box"
	DriverFileSystem = "file_system"
)

// FactoryEnv carries the shared dependencies handed to every driver.
type FactoryEnv struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Factory constructs a provider instance for one configured key.
type Factory func(key string, cfg provider.Config, env FactoryEnv) (provider.Provider, error)

// DefaultFactories returns the built-in drivers.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		DriverBox: func(key string, cfg provider.Config, env FactoryEnv) (provider.Provider, error) {
			p, err := box.New(key, cfg, box.Options{
				HTTPClient: env.HTTPClient,
				Logger:     env.Logger,
				UserAgent:  env.UserAgent,
			})
			if err != nil {
				return nil, err
			}

			return p, nil
		},
		DriverFileSystem: func(key string, cfg provider.Config, env FactoryEnv) (provider.Provider, error) {
			p, err := filesystem.New(key, cfg, env.Logger)
			if err != nil {
				return nil, err
			}

			return p, nil
		},
	}
}
