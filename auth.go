package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/icza/gox/osx"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudbrowse/internal/callback"
	"github.com/tonimelisma/cloudbrowse/internal/config"
	"github.com/tonimelisma/cloudbrowse/internal/provider"
)

// defaultConnectTimeout bounds how long connect waits for the browser redirect.
const defaultConnectTimeout = 5 * time.Minute

func newAuthLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-link <provider>",
		Short: "Print the authorization URL for a provider",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuthLink,
	}
}

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <provider>",
		Short: "Authorize a provider through the browser",
		Long: `Authorize a provider with its OAuth authorization code flow.

connect listens on the provider's redirect_uri (which must be a plain http
loopback address such as http://localhost:3000/browse/connect), opens the
authorization page in the default browser, and stores the resulting token.`,
		Args: cobra.ExactArgs(1),
		RunE: runConnect,
	}

	cmd.Flags().Bool("no-browser", false, "print the authorization URL instead of opening a browser")
	cmd.Flags().Duration("timeout", defaultConnectTimeout, "how long to wait for the authorization redirect")

	return cmd
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <provider>",
		Short: "Forget the stored token of a provider",
		Args:  cobra.ExactArgs(1),
		RunE:  runDisconnect,
	}
}

func runAuthLink(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.browser.Provider(args[0])
	if err != nil {
		return err
	}

	link, err := p.AuthLink(cmd.Context())
	if err != nil {
		return err
	}

	if link == "" {
		statusf("%s does not need authorization.\n", p.Name())
		return nil
	}

	fmt.Fprintln(os.Stdout, link)

	return nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	key := args[0]
	noBrowser, _ := cmd.Flags().GetBool("no-browser")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.browser.Provider(key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	link, err := p.AuthLink(ctx)
	if err != nil {
		return err
	}

	if link == "" {
		statusf("%s does not need authorization.\n", p.Name())
		return nil
	}

	pc := resolvedCfg.Providers[key]

	redirect, err := absoluteRedirect(pc)
	if err != nil {
		return err
	}

	listener, err := callback.Listen(ctx, redirect, s.logger)
	if err != nil {
		return err
	}
	defer listener.Close()

	launchBrowser(link, noBrowser, s.logger)

	query, err := listener.Wait(ctx)
	if err != nil {
		return err
	}

	if state := query.Get("state"); state != key {
		return fmt.Errorf("authorization redirect was for provider %q, not %q", state, key)
	}

	connected, err := s.browser.Connect(ctx, provider.AuthParams{
		Code:    query.Get("code"),
		State:   query.Get("state"),
		BaseURL: pc.BaseURL,
	})
	if err != nil {
		return err
	}

	statusf("Connected %s (%s).\n", connected.Key(), connected.Name())

	return nil
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.browser.Disconnect(cmd.Context(), args[0]); err != nil {
		return err
	}

	statusf("Disconnected %s.\n", args[0])

	return nil
}

// absoluteRedirect resolves a relative redirect_uri against base_url.
func absoluteRedirect(pc config.ProviderConfig) (string, error) {
	if pc.RedirectURI == "" {
		return "", errors.New("redirect_uri is not configured for this provider")
	}

	ref, err := url.Parse(pc.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("parsing redirect_uri: %w", err)
	}

	if ref.IsAbs() {
		return ref.String(), nil
	}

	if pc.BaseURL == "" {
		return "", fmt.Errorf("redirect_uri %q is relative and base_url is not set", pc.RedirectURI)
	}

	base, err := url.Parse(pc.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base_url: %w", err)
	}

	return base.ResolveReference(ref).String(), nil
}

// launchBrowser opens the authorization URL. If that fails or is disabled,
// the URL is printed to stderr so the user can copy-paste it.
func launchBrowser(authURL string, disabled bool, logger *slog.Logger) {
	if !disabled {
		logger.Info("opening browser for authorization")

		openErr := osx.OpenDefault(authURL)
		if openErr == nil {
			return
		}

		logger.Warn("failed to open browser, printing URL", slog.String("error", openErr.Error()))
	}

	// Authorization prompts must always be visible, even with --quiet.
	fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
}
