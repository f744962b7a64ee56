// Package callback runs the short-lived loopback HTTP server that receives
// an OAuth authorization redirect during "cloudbrowse connect".
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

const shutdownTimeout = 5 * time.Second

// ErrDenied is returned by Wait when the authorization server redirected
// back with an error parameter.
var ErrDenied = errors.New("callback: authorization denied")

// DeniedError carries the error parameters of a failed authorization.
type DeniedError struct {
	Code        string
	Description string
	State       string
}

func (e *DeniedError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("callback: authorization denied: %s", e.Code)
	}

	return fmt.Sprintf("callback: authorization denied: %s: %s", e.Code, e.Description)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

type result struct {
	query url.Values
	err   error
}

// Listener serves the redirect path of a loopback redirect URI until the
// first callback arrives.
type Listener struct {
	srv      *http.Server
	url      *url.URL
	resultCh chan result
	logger   *slog.Logger
}

// Listen binds the host and port of redirectURI and serves its path. Only
// plain http loopback URIs are accepted. Port 0 binds an ephemeral port;
// URL reports the bound address.
func Listen(ctx context.Context, redirectURI string, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := parseRedirect(redirectURI)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("callback: binding %s: %w", u.Host, err)
	}

	bound := *u
	bound.Host = listener.Addr().String()

	l := &Listener{
		url:      &bound,
		resultCh: make(chan result, 1),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+u.Path, l.handle)

	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := l.srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			l.deliver(result{err: fmt.Errorf("callback: server error: %w", serveErr)})
		}
	}()

	logger.Info("callback server listening", slog.String("addr", bound.Host), slog.String("path", u.Path))

	return l, nil
}

func parseRedirect(redirectURI string) (*url.URL, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("callback: bad redirect URI %q: %w", redirectURI, err)
	}

	if u.Scheme != "http" {
		return nil, fmt.Errorf("callback: redirect URI %q must use http", redirectURI)
	}

	host := u.Hostname()
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("callback: redirect URI %q is not a loopback address", redirectURI)
		}
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}

	u.Host = net.JoinHostPort(host, port)

	if u.Path == "" {
		u.Path = "/"
	}

	return u, nil
}

// URL returns the redirect URI as actually bound.
func (l *Listener) URL() string {
	return l.url.String()
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if code := q.Get("error"); code != "" {
		http.Error(w, "Authorization failed: "+code, http.StatusBadRequest)
		l.deliver(result{err: &DeniedError{
			Code:        code,
			Description: q.Get("error_description"),
			State:       q.Get("state"),
		}})

		return
	}

	if q.Get("code") == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		l.deliver(result{err: errors.New("callback: redirect is missing the authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Connected</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")

	l.deliver(result{query: q})
}

// deliver keeps the first result; later requests are answered but dropped.
func (l *Listener) deliver(res result) {
	select {
	case l.resultCh <- res:
	default:
		l.logger.Debug("dropping extra callback")
	}
}

// Wait blocks until the first callback arrives or ctx is done, and returns
// the redirect's query parameters.
func (l *Listener) Wait(ctx context.Context) (url.Values, error) {
	select {
	case res := <-l.resultCh:
		return res.query, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("callback: waiting for redirect: %w", ctx.Err())
	}
}

// Close shuts the server down.
func (l *Listener) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := l.srv.Shutdown(shutdownCtx); err != nil {
		l.logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
		return fmt.Errorf("callback: shutdown: %w", err)
	}

	return nil
}
