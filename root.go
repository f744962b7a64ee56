package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudbrowse/internal/browser"
	"github.com/tonimelisma/cloudbrowse/internal/config"
	"github.com/tonimelisma/cloudbrowse/internal/metrics"
	"github.com/tonimelisma/cloudbrowse/internal/retriever"
	"github.com/tonimelisma/cloudbrowse/internal/tokenstore"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath  string
	flagTokenDB     string
	flagTempDir     string
	flagMetricsAddr string
	flagJSON        bool
	flagVerbose     bool
	flagQuiet       bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// metricsShutdownTimeout bounds how long the metrics listener may take to stop.
const metricsShutdownTimeout = 2 * time.Second

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var stopMetrics func()

	cmd := &cobra.Command{
		Use:     "cloudbrowse",
		Short:   "Browse cloud storage providers and retrieve files",
		Long:    "Browse Box and local file trees through one location syntax, and stream files from download descriptors.",
		Version: version,
		// Silence Cobra's default error/usage printing; main prints errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}

			stop, err := startMetrics(flagMetricsAddr, buildLogger())
			if err != nil {
				return err
			}

			stopMetrics = stop

			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if stopMetrics != nil {
				stopMetrics()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagTokenDB, "token-db", "", "token database path")
	cmd.PersistentFlags().StringVar(&flagTempDir, "temp-dir", "", "directory for in-progress downloads")
	cmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newProvidersCmd())
	cmd.AddCommand(newAuthLinkCmd())
	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newDisconnectCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newLinkCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newProbeCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer override
// chain and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	// Only pass path flags to the resolver if the user explicitly set them.
	if cmd.Flags().Changed("token-db") {
		cli.TokenDB = &flagTokenDB
	}

	if cmd.Flags().Changed("temp-dir") {
		cli.TempDir = &flagTempDir
	}

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", path, err)
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	return newLogger(os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))
}

func newLogger(w io.Writer, terminal bool) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	// Config-based settings (lower priority than CLI flags).
	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.LogFormat
	}

	// CLI flags override config (highest priority).
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !terminal) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// newHTTPClient returns the HTTP client shared by every provider and the
// retriever. Only connection setup is bounded; downloads may run as long as
// the caller's context allows.
func newHTTPClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if timeout := cfg.ConnectTimeoutDuration(); timeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: timeout}).DialContext
		transport.TLSHandshakeTimeout = timeout
	}

	return &http.Client{Transport: transport}
}

// session bundles what browse commands need. Close releases the token store.
type session struct {
	browser *browser.Browser
	tokens  *tokenstore.Store
	logger  *slog.Logger
}

func (s *session) Close() {
	if err := s.tokens.Close(); err != nil {
		s.logger.Warn("closing token store", slog.String("error", err.Error()))
	}
}

// openSession opens the token store and builds a Browser over every
// configured provider.
func openSession(ctx context.Context) (*session, error) {
	logger := buildLogger()

	if len(resolvedCfg.Providers) == 0 {
		return nil, errors.New("no providers configured: add a [provider.<key>] section to the config file")
	}

	dbPath := resolvedCfg.TokenDBPath()
	if dbPath == "" {
		return nil, errors.New("cannot determine token database path: set token_db")
	}

	store, err := tokenstore.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, err
	}

	b, err := browser.New(ctx, providerSpecs(resolvedCfg), browser.Options{
		CacheTTL:   resolvedCfg.ListingCacheDuration(),
		Tokens:     store,
		HTTPClient: newHTTPClient(resolvedCfg),
		Logger:     logger,
		UserAgent:  resolvedCfg.UserAgent,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &session{browser: b, tokens: store, logger: logger}, nil
}

// providerSpecs converts config sections into browser specs in key order.
func providerSpecs(cfg *config.Config) []browser.ProviderSpec {
	keys := cfg.ProviderKeys()
	specs := make([]browser.ProviderSpec, 0, len(keys))

	for _, key := range keys {
		pc := cfg.Providers[key]
		specs = append(specs, browser.ProviderSpec{
			Key:    key,
			Driver: pc.EffectiveDriver(key),
			Config: pc.ToProvider(),
		})
	}

	return specs
}

// newRetriever builds a Retriever from the resolved config.
func newRetriever(logger *slog.Logger) *retriever.Retriever {
	return retriever.New(retriever.Options{
		HTTPClient:    newHTTPClient(resolvedCfg),
		ChunkSize:     resolvedCfg.ChunkBytes(),
		TempDir:       resolvedCfg.TempDir,
		RejectExpired: resolvedCfg.RejectExpiredLinks,
		UserAgent:     resolvedCfg.UserAgent,
		Logger:        logger,
	})
}

// startMetrics serves /metrics on addr until the returned stop func runs.
// An empty addr disables it.
func startMetrics(addr string, logger *slog.Logger) (func(), error) {
	if addr == "" {
		return nil, nil
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding metrics address %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsShutdownTimeout}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("metrics server error", slog.String("error", serveErr.Error()))
		}
	}()

	logger.Info("serving metrics", slog.String("addr", listener.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
		}
	}, nil
}
