// Package provider defines the capability contract every storage backend
// driver satisfies: OAuth authorization, container listing normalized into
// resource.Entry values, and resolution of a time-limited direct download
// link for a leaf resource. New backends are added by implementing Provider,
// never by branching on backend type in shared code.
package provider

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/cloudbrowse/internal/resource"
)

// Recognized credential keys, used in InitializationError reports.
const (
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyRedirectURI  = "redirect_uri"
)

// DefaultLinkLifetime is how long a resolved link is assumed to stay valid
// when the backend does not state a lifetime.
const DefaultLinkLifetime = time.Hour

// Provider is the uniform contract for one configured backend instance.
type Provider interface {
	// Key is the short identifier used in locations and as the OAuth state.
	Key() string
	// Name is the human-readable backend name.
	Name() string
	// AuthLink returns the backend's authorization URL, or "" when the
	// backend needs no authorization.
	AuthLink(ctx context.Context) (string, error)
	// Authorized reports whether a usable token is held. No I/O.
	Authorized() bool
	// Connect exchanges an authorization code for a token.
	Connect(ctx context.Context, params AuthParams) error
	// Contents lists a container. "" is the root container.
	Contents(ctx context.Context, containerID string) ([]resource.Entry, error)
	// LinkFor resolves a direct download URL for a leaf resource.
	LinkFor(ctx context.Context, resourceID string) (string, LinkInfo, error)
}

// TokenHolder is implemented by providers whose token the host persists.
type TokenHolder interface {
	Token() *oauth2.Token
	SetToken(tok *oauth2.Token)
	OnTokenChange(fn func(*oauth2.Token))
}

// AuthParams carries the query parameters of an OAuth callback.
type AuthParams struct {
	Code  string
	State string
	// BaseURL resolves a relative redirect_uri, e.g. "/browse/connect".
	BaseURL string
}

// LinkInfo describes a resolved download link. Expires is always set;
// callers must not assume the link is valid past it.
type LinkInfo struct {
	Expires  time.Time
	FileName string
	FileSize int64
	Headers  map[string]string
}

// Config is the construction input for a driver. Options holds
// driver-specific keys (e.g. "home" for the file-system driver).
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Options      map[string]string
}

// Option returns a driver-specific option, or "" when unset.
func (c Config) Option(key string) string {
	if c.Options == nil {
		return ""
	}

	return c.Options[key]
}

// RequireOAuth returns an InitializationError naming every missing OAuth
// credential, or nil when all are present.
func (c Config) RequireOAuth(providerKey string) error {
	var missing []string

	if c.ClientID == "" {
		missing = append(missing, KeyClientID)
	}

	if c.ClientSecret == "" {
		missing = append(missing, KeyClientSecret)
	}

	if c.RedirectURI == "" {
		missing = append(missing, KeyRedirectURI)
	}

	if len(missing) > 0 {
		return &InitializationError{Provider: providerKey, Missing: missing}
	}

	return nil
}

// Authorized reports whether tok is usable at now: an access token is
// present and the expiry is explicit and strictly in the future. A token
// without an expiry is never considered authorized.
func Authorized(tok *oauth2.Token, now time.Time) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}

	if tok.Expiry.IsZero() {
		return false
	}

	return tok.Expiry.After(now)
}

// Refreshable reports whether tok carries a refresh token.
func Refreshable(tok *oauth2.Token) bool {
	return tok != nil && tok.RefreshToken != ""
}
