// Package box implements the provider contract for Box
// (https://developer.box.com/reference). It performs the OAuth2
// authorization-code flow, lists folders with offset pagination and
// resolves short-lived signed download URLs through the two-step
// file/content endpoints.
//
// The driver does not retry. A failed request surfaces as a typed error
// and the host decides whether to try again.
package box

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/cloudbrowse/internal/provider"
)

// Default Box endpoints.
const (
	DefaultAPIBase  = "https://api.box.com/2.0"
	DefaultAuthURL  = "https://www.box.com/api/oauth2/authorize"
	DefaultTokenURL = "https://www.box.com/api/oauth2/token"

	displayName      = "Box"
	defaultUserAgent = "cloudbrowse/0.1"

	// OptionBaseURL resolves a relative redirect_uri when building the
	// authorization link. AuthParams.BaseURL takes precedence on Connect.
	OptionBaseURL = "base_url"
)

// Options tunes a Provider. The zero value targets the public Box endpoints.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string

	// Endpoint overrides, used by tests.
	APIBase  string
	AuthURL  string
	TokenURL string
}

// Provider is a Box backend instance. Safe for concurrent use.
type Provider struct {
	key        string
	cfg        provider.Config
	apiBase    string
	endpoint   oauth2.Endpoint
	httpClient *http.Client
	// noRedirect is httpClient with redirects disabled, for the content
	// step whose 302 Location is the answer.
	noRedirect *http.Client
	userAgent  string
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     *oauth2.Token
	observers []func(*oauth2.Token)
}

// New validates cfg and returns a Box provider registered under key.
// Missing OAuth credentials fail with *provider.InitializationError.
func New(key string, cfg provider.Config, opts Options) (*Provider, error) {
	if err := cfg.RequireOAuth(key); err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		key:        key,
		cfg:        cfg,
		apiBase:    valueOr(opts.APIBase, DefaultAPIBase),
		httpClient: httpClient,
		noRedirect: &noRedirect,
		userAgent:  valueOr(opts.UserAgent, defaultUserAgent),
		logger:     logger.With(slog.String("provider", key)),
		now:        time.Now,
		endpoint: oauth2.Endpoint{
			AuthURL:   valueOr(opts.AuthURL, DefaultAuthURL),
			TokenURL:  valueOr(opts.TokenURL, DefaultTokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return p, nil
}

// Key returns the configured provider key.
func (p *Provider) Key() string { return p.key }

// Name returns "Box".
func (p *Provider) Name() string { return displayName }

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

var (
	_ provider.Provider    = (*Provider)(nil)
	_ provider.TokenHolder = (*Provider)(nil)
)
