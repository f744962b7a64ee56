package main

import (
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their authorization state",
		Args:  cobra.NoArgs,
		RunE:  runProviders,
	}
}

// providerJSON is the JSON output schema for one provider.
type providerJSON struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Driver      string `json:"driver"`
	Authorized  bool   `json:"authorized"`
	StoredToken bool   `json:"stored_token"`
}

func runProviders(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	stored, err := s.tokens.Keys(ctx)
	if err != nil {
		return err
	}

	out := make([]providerJSON, 0, len(s.browser.Providers()))

	for _, p := range s.browser.Providers() {
		out = append(out, providerJSON{
			Key:         p.Key(),
			Name:        p.Name(),
			Driver:      s.browser.Driver(p.Key()),
			Authorized:  p.Authorized(),
			StoredToken: slices.Contains(stored, p.Key()),
		})
	}

	return printProviders(os.Stdout, out, flagJSON)
}

func printProviders(w io.Writer, providers []providerJSON, asJSON bool) error {
	if asJSON {
		return printJSON(w, providers)
	}

	rows := make([][]string, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, []string{p.Key, p.Name, p.Driver, strconv.FormatBool(p.Authorized)})
	}

	printTable(w, []string{"KEY", "NAME", "DRIVER", "AUTHORIZED"}, rows)

	return nil
}
