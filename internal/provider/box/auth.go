package box

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/cloudbrowse/internal/metrics"
	"github.com/tonimelisma/cloudbrowse/internal/provider"
)

// tokenResourceID names the token endpoint in ProtocolError reports.
const tokenResourceID = "oauth2/token"

// AuthLink returns the Box authorization URL. The OAuth state is the
// provider key so the host can route the callback back to this instance.
func (p *Provider) AuthLink(_ context.Context) (string, error) {
	redirect, err := p.redirectURL(p.cfg.Option(OptionBaseURL))
	if err != nil {
		return "", err
	}

	return p.oauthConfig(redirect).AuthCodeURL(p.key), nil
}

// Authorized reports whether the held token is usable right now.
func (p *Provider) Authorized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return provider.Authorized(p.token, p.now())
}

// Connect exchanges the callback code for a token and registers it.
func (p *Provider) Connect(ctx context.Context, params provider.AuthParams) error {
	if params.State != "" && params.State != p.key {
		return &provider.AuthorizationError{
			Provider: p.key,
			Reason:   fmt.Sprintf("callback state %q does not match provider", params.State),
		}
	}

	if params.Code == "" {
		return &provider.AuthorizationError{Provider: p.key, Reason: "callback missing authorization code"}
	}

	base := params.BaseURL
	if base == "" {
		base = p.cfg.Option(OptionBaseURL)
	}

	redirect, err := p.redirectURL(base)
	if err != nil {
		return err
	}

	p.logger.Info("exchanging authorization code for token")

	tok, err := p.oauthConfig(redirect).Exchange(p.oauthContext(ctx), params.Code)
	if err != nil {
		return p.tokenEndpointError("token exchange failed", err)
	}

	p.logger.Info("token exchange successful", slog.Time("expiry", tok.Expiry))

	p.storeToken(tok)

	return nil
}

// Token returns a copy of the held token, or nil.
func (p *Provider) Token() *oauth2.Token {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		return nil
	}

	tok := *p.token

	return &tok
}

// SetToken replaces the held token without notifying observers. The host
// uses it to restore a persisted token; nil clears the token.
func (p *Provider) SetToken(tok *oauth2.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = tok
}

// OnTokenChange registers fn to run after Connect and after each silent
// refresh, outside the provider's lock.
func (p *Provider) OnTokenChange(fn func(*oauth2.Token)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.observers = append(p.observers, fn)
}

// ensureToken returns a usable access token, refreshing at most once when
// the held token is stale and refreshable. The check and the refresh run
// under p.mu so concurrent callers refresh once.
func (p *Provider) ensureToken(ctx context.Context) (string, error) {
	p.mu.Lock()

	tok := p.token
	if provider.Authorized(tok, p.now()) {
		p.mu.Unlock()
		return tok.AccessToken, nil
	}

	if !provider.Refreshable(tok) {
		p.mu.Unlock()
		return "", &provider.AuthorizationError{Provider: p.key, Reason: "no valid access token"}
	}

	p.logger.Info("access token stale, refreshing")

	// A token with only a refresh token is never Valid, which forces the
	// oauth2 token source to hit the token endpoint.
	src := p.oauthConfig("").TokenSource(p.oauthContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})

	fresh, err := src.Token()
	if err != nil {
		p.mu.Unlock()
		metrics.RecordTokenRefresh(p.key, false)
		p.logger.Warn("token refresh failed", slog.String("error", err.Error()))

		return "", &provider.AuthorizationError{Provider: p.key, Reason: "token refresh failed", Err: err}
	}

	p.token = fresh
	observers := slices.Clone(p.observers)
	p.mu.Unlock()

	metrics.RecordTokenRefresh(p.key, true)
	p.logger.Info("token refreshed", slog.Time("expiry", fresh.Expiry))
	notify(observers, fresh)

	return fresh.AccessToken, nil
}

func (p *Provider) storeToken(tok *oauth2.Token) {
	p.mu.Lock()
	p.token = tok
	observers := slices.Clone(p.observers)
	p.mu.Unlock()

	notify(observers, tok)
}

func notify(observers []func(*oauth2.Token), tok *oauth2.Token) {
	for _, fn := range observers {
		copied := *tok
		fn(&copied)
	}
}

func (p *Provider) oauthConfig(redirect string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirect,
		Endpoint:     p.endpoint,
	}
}

// oauthContext routes oauth2 token requests through the provider's client.
func (p *Provider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// redirectURL resolves a relative redirect_uri such as "/browse/connect"
// against base. Without a base the configured value is used verbatim.
func (p *Provider) redirectURL(base string) (string, error) {
	ref, err := url.Parse(p.cfg.RedirectURI)
	if err != nil {
		return "", &provider.InitializationError{Provider: p.key, Reason: "invalid redirect_uri: " + err.Error()}
	}

	if ref.IsAbs() || base == "" {
		return p.cfg.RedirectURI, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", &provider.AuthorizationError{Provider: p.key, Reason: "invalid base URL", Err: err}
	}

	return baseURL.ResolveReference(ref).String(), nil
}

// tokenEndpointError converts an oauth2 failure into the provider taxonomy.
func (p *Provider) tokenEndpointError(msg string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode

		return &provider.ProtocolError{
			Provider:   p.key,
			ResourceID: tokenResourceID,
			StatusCode: status,
			Message:    msg + ": " + string(retrieveErr.Body),
			Err:        provider.ClassifyStatus(status),
		}
	}

	return &provider.ProtocolError{
		Provider:   p.key,
		ResourceID: tokenResourceID,
		Message:    msg,
		Err:        err,
	}
}
