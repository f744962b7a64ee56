// Package browser is the registry of configured providers. It routes
// "<key>:<id>" locations to the owning provider, routes OAuth callbacks by
// their state parameter, optionally caches listings, and keeps provider
// tokens in step with a host-supplied TokenStore.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/cloudbrowse/internal/metrics"
	"github.com/tonimelisma/cloudbrowse/internal/provider"
	"github.com/tonimelisma/cloudbrowse/internal/resource"
	"github.com/tonimelisma/cloudbrowse/internal/retriever"
)

// Sentinel errors for registry lookups.
var (
	ErrUnknownProvider   = errors.New("browser: unknown provider")
	ErrUnknownDriver     = errors.New("browser: unknown driver")
	ErrDuplicateProvider = errors.New("browser: duplicate provider key")
	ErrInvalidKey        = errors.New("browser: invalid provider key")
	ErrContainer         = errors.New("browser: location is a container")
)

// TokenStore persists provider tokens on behalf of the host. Load returns
// nil, nil when no token is stored for key.
type TokenStore interface {
	Load(ctx context.Context, key string) (*oauth2.Token, error)
	Save(ctx context.Context, key string, tok *oauth2.Token) error
	Delete(ctx context.Context, key string) error
}

// ProviderSpec configures one provider instance. Driver defaults to Key.
type ProviderSpec struct {
	Key    string
	Driver string
	Config provider.Config
}

// Options configures a Browser.
type Options struct {
	// CacheTTL enables listing caching when positive.
	CacheTTL time.Duration
	// Tokens, when set, restores tokens at construction and persists every
	// token change.
	Tokens     TokenStore
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
	// Factories overrides DefaultFactories.
	Factories map[string]Factory
}

// Browser holds the providers built from a set of specs. Its provider map is
// read-only after New, so a Browser is safe for concurrent use.
type Browser struct {
	providers map[string]provider.Provider
	drivers   map[string]string
	keys      []string
	listings  *cache.Cache // nil when caching is disabled
	tokens    TokenStore
	logger    *slog.Logger
}

// New builds every provider in specs. An unknown driver, a duplicate or
// malformed key, or a driver InitializationError fails the whole call.
func New(ctx context.Context, specs []ProviderSpec, opts Options) (*Browser, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	factories := opts.Factories
	if factories == nil {
		factories = DefaultFactories()
	}

	env := FactoryEnv{HTTPClient: opts.HTTPClient, Logger: logger, UserAgent: opts.UserAgent}

	b := &Browser{
		providers: make(map[string]provider.Provider, len(specs)),
		drivers:   make(map[string]string, len(specs)),
		tokens:    opts.Tokens,
		logger:    logger,
	}

	if opts.CacheTTL > 0 {
		b.listings = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}

	for _, spec := range specs {
		if err := b.add(ctx, spec, factories, env); err != nil {
			return nil, err
		}
	}

	slices.Sort(b.keys)

	logger.Debug("browser ready", slog.Int("providers", len(b.keys)))

	return b, nil
}

func (b *Browser) add(ctx context.Context, spec ProviderSpec, factories map[string]Factory, env FactoryEnv) error {
	if spec.Key == "" || strings.Contains(spec.Key, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, spec.Key)
	}

	if _, dup := b.providers[spec.Key]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateProvider, spec.Key)
	}

	driver := spec.Driver
	if driver == "" {
		driver = spec.Key
	}

	factory, ok := factories[driver]
	if !ok {
		return fmt.Errorf("%w: %q for provider %q", ErrUnknownDriver, driver, spec.Key)
	}

	p, err := factory(spec.Key, spec.Config, env)
	if err != nil {
		return fmt.Errorf("browser: building provider %q: %w", spec.Key, err)
	}

	if err := b.wireTokens(ctx, p); err != nil {
		return err
	}

	b.providers[spec.Key] = p
	b.drivers[spec.Key] = driver
	b.keys = append(b.keys, spec.Key)

	return nil
}

// wireTokens restores a stored token into p and persists future changes.
func (b *Browser) wireTokens(ctx context.Context, p provider.Provider) error {
	holder, ok := p.(provider.TokenHolder)
	if !ok || b.tokens == nil {
		return nil
	}

	key := p.Key()

	tok, err := b.tokens.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("browser: loading token for %q: %w", key, err)
	}

	if tok != nil {
		holder.SetToken(tok)
		b.logger.Debug("restored stored token",
			slog.String("provider", key),
			slog.Time("expiry", tok.Expiry),
		)
	}

	holder.OnTokenChange(func(tok *oauth2.Token) {
		// Observers may fire from a caller whose context is already done.
		if err := b.tokens.Save(context.Background(), key, tok); err != nil {
			b.logger.Warn("failed to persist token",
				slog.String("provider", key),
				slog.String("error", err.Error()),
			)

			return
		}

		b.logger.Debug("persisted token", slog.String("provider", key))
	})

	return nil
}

// Providers returns every provider sorted by key.
func (b *Browser) Providers() []provider.Provider {
	out := make([]provider.Provider, 0, len(b.keys))
	for _, k := range b.keys {
		out = append(out, b.providers[k])
	}

	return out
}

// Provider returns the provider registered under key.
func (b *Browser) Provider(key string) (provider.Provider, error) {
	p, ok := b.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
	}

	return p, nil
}

// Driver returns the driver name a provider was built with.
func (b *Browser) Driver(key string) string {
	return b.drivers[key]
}

// Contents lists the container at location, e.g. "box:0" or "box".
func (b *Browser) Contents(ctx context.Context, location string) ([]resource.Entry, error) {
	loc, p, err := b.resolve(location)
	if err != nil {
		return nil, err
	}

	cacheKey := loc.String()

	if b.listings != nil {
		if cached, ok := b.listings.Get(cacheKey); ok {
			metrics.RecordListingCache(true)
			return slices.Clone(cached.([]resource.Entry)), nil
		}

		metrics.RecordListingCache(false)
	}

	entries, err := p.Contents(ctx, loc.ID)
	if err != nil {
		return nil, err
	}

	if b.listings != nil {
		b.listings.SetDefault(cacheKey, slices.Clone(entries))
	}

	return entries, nil
}

// Connect routes an OAuth callback to the provider named by params.State
// and returns it. Cached listings of that provider are dropped on success.
func (b *Browser) Connect(ctx context.Context, params provider.AuthParams) (provider.Provider, error) {
	p, err := b.Provider(params.State)
	if err != nil {
		return nil, err
	}

	if err := p.Connect(ctx, params); err != nil {
		return nil, err
	}

	b.flush(p.Key())

	b.logger.Info("provider connected", slog.String("provider", p.Key()))

	return p, nil
}

// Disconnect forgets the token held for key, in memory and in the store.
func (b *Browser) Disconnect(ctx context.Context, key string) error {
	p, err := b.Provider(key)
	if err != nil {
		return err
	}

	if holder, ok := p.(provider.TokenHolder); ok {
		holder.SetToken(nil)
	}

	if b.tokens != nil {
		if err := b.tokens.Delete(ctx, key); err != nil {
			return fmt.Errorf("browser: deleting token for %q: %w", key, err)
		}
	}

	b.flush(key)

	b.logger.Info("provider disconnected", slog.String("provider", key))

	return nil
}

// Descriptor resolves the leaf at location into a retrieval descriptor.
func (b *Browser) Descriptor(ctx context.Context, location string) (retriever.Descriptor, error) {
	loc, p, err := b.resolve(location)
	if err != nil {
		return retriever.Descriptor{}, err
	}

	if loc.IsRoot() {
		return retriever.Descriptor{}, fmt.Errorf("%w: %q", ErrContainer, location)
	}

	link, info, err := p.LinkFor(ctx, loc.ID)
	if err != nil {
		return retriever.Descriptor{}, err
	}

	return retriever.Descriptor{
		URL:      link,
		Headers:  info.Headers,
		FileName: info.FileName,
		FileSize: info.FileSize,
		Expires:  info.Expires,
	}, nil
}

func (b *Browser) resolve(location string) (resource.Location, provider.Provider, error) {
	loc, err := resource.ParseLocation(location)
	if err != nil {
		return resource.Location{}, nil, err
	}

	p, err := b.Provider(loc.Provider)
	if err != nil {
		return resource.Location{}, nil, err
	}

	return loc, p, nil
}

// flush drops every cached listing owned by key.
func (b *Browser) flush(key string) {
	if b.listings == nil {
		return
	}

	prefix := key + ":"

	for k := range b.listings.Items() {
		if strings.HasPrefix(k, prefix) {
			b.listings.Delete(k)
		}
	}
}
