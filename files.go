package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/cloudbrowse/internal/resource"
	"github.com/tonimelisma/cloudbrowse/internal/retriever"
)

// probeConcurrency bounds parallel CanRetrieve probes.
const probeConcurrency = 8

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [location]",
		Short: "List a container, e.g. box:0 or local:photos",
		Long: `List the entries of a container. A location is "<provider>:<id>"; a bare
provider key lists that provider's root. Without an argument the root of the
first configured provider is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLs,
	}
}

func newLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <location>",
		Short: "Print the download descriptor of a file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runLink,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <location> [local-path]",
		Short: "Download a file by location",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <descriptor.json|url|-> [local-path]",
		Short: "Download from a descriptor file or a URL",
		Long: `Run the retriever on a download descriptor. The argument is a JSON
descriptor file, "-" for a descriptor on stdin, or a bare file:// or http(s)
URL. With --stdout the bytes are streamed to stdout instead of a file.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runFetch,
	}

	cmd.Flags().StringArrayP("header", "H", nil, `extra request header "Name: value" (repeatable)`)
	cmd.Flags().Bool("stdout", false, "write the content to stdout")

	return cmd
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <url>...",
		Short: "Check whether URLs can be retrieved",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runProbe,
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	location := s.browser.Providers()[0].Key()
	if len(args) > 0 {
		location = args[0]
	}

	s.logger.Debug("ls", slog.String("location", location))

	entries, err := s.browser.Contents(ctx, location)
	if err != nil {
		return fmt.Errorf("listing %q: %w", location, err)
	}

	if flagJSON {
		return printJSON(os.Stdout, entries)
	}

	printEntriesTable(os.Stdout, entries)

	return nil
}

// printEntriesTable prints entries in backend order; drivers already order
// their listings.
func printEntriesTable(w io.Writer, entries []resource.Entry) {
	headers := []string{"NAME", "SIZE", "MODIFIED", "LOCATION"}
	rows := make([][]string, 0, len(entries))

	for i := range entries {
		e := &entries[i]

		name := e.Name
		size := formatSize(e.Size)

		if e.IsContainer {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(e.ModTime), e.Location})
	}

	printTable(w, headers, rows)
}

func runLink(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.browser.Descriptor(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolving %q: %w", args[0], err)
	}

	return printJSON(os.Stdout, d)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.browser.Descriptor(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolving %q: %w", args[0], err)
	}

	localPath := ""
	if len(args) > 1 {
		localPath = args[1]
	}

	return downloadTo(ctx, newRetriever(s.logger), d, localPath, s.logger)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	headers, _ := cmd.Flags().GetStringArray("header")
	toStdout, _ := cmd.Flags().GetBool("stdout")

	d, err := readDescriptor(args[0], os.Stdin)
	if err != nil {
		return err
	}

	if err := applyHeaders(&d, headers); err != nil {
		return err
	}

	r := newRetriever(logger)

	if toStdout {
		return streamTo(ctx, r, d, os.Stdout)
	}

	localPath := ""
	if len(args) > 1 {
		localPath = args[1]
	}

	return downloadTo(ctx, r, d, localPath, logger)
}

// readDescriptor interprets arg as "-" (JSON on stdin), a JSON descriptor
// file, or a bare URL.
func readDescriptor(arg string, stdin io.Reader) (retriever.Descriptor, error) {
	var d retriever.Descriptor

	var data []byte

	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return d, fmt.Errorf("reading descriptor from stdin: %w", err)
		}

		data = b
	case isFetchURL(arg):
		return retriever.Descriptor{URL: arg}, nil
	case strings.HasSuffix(arg, ".json"):
		b, err := os.ReadFile(arg)
		if err != nil {
			return d, fmt.Errorf("reading descriptor: %w", err)
		}

		data = b
	default:
		return retriever.Descriptor{URL: arg}, nil
	}

	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decoding descriptor: %w", err)
	}

	if d.URL == "" {
		return d, errors.New("descriptor has no url")
	}

	return d, nil
}

// isFetchURL reports whether arg is a URL the retriever streams, as opposed to
// a descriptor file path that happens to end in ".json".
func isFetchURL(arg string) bool {
	u, err := url.Parse(arg)
	if err != nil {
		return false
	}

	switch strings.ToLower(u.Scheme) {
	case "file", "http", "https":
		return true
	default:
		return false
	}
}

// applyHeaders merges "Name: value" pairs into the descriptor headers.
func applyHeaders(d *retriever.Descriptor, headers []string) error {
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)

		if !ok || name == "" {
			return fmt.Errorf("invalid header %q: want \"Name: value\"", h)
		}

		if d.Headers == nil {
			d.Headers = make(map[string]string)
		}

		d.Headers[name] = strings.TrimSpace(value)
	}

	return nil
}

// downloadTo retrieves d into a temp file and moves it to localPath, which
// defaults to the descriptor's file name.
func downloadTo(ctx context.Context, r *retriever.Retriever, d retriever.Descriptor, localPath string, logger *slog.Logger) error {
	if localPath == "" {
		localPath = defaultFileName(d)
	}

	p := newProgress(filepath.Base(localPath))

	tmp, err := r.Download(ctx, d, p.update)
	p.finish()

	if err != nil {
		return err
	}

	if err := moveFile(tmp, localPath); err != nil {
		os.Remove(tmp)
		return err
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat after download: %w", err)
	}

	logger.Debug("download complete", slog.String("local_path", localPath), slog.Int64("bytes", fi.Size()))
	statusf("Downloaded %s (%s)\n", localPath, formatSize(fi.Size()))

	return nil
}

// streamTo writes the descriptor's content to w chunk by chunk.
func streamTo(ctx context.Context, r *retriever.Retriever, d retriever.Descriptor, w io.Writer) error {
	for chunk, err := range r.Chunks(ctx, d) {
		if err != nil {
			return err
		}

		if _, err := w.Write(chunk.Data); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	return nil
}

// defaultFileName picks a local name from the descriptor: its file name, or
// the last URL path segment.
func defaultFileName(d retriever.Descriptor) string {
	if name := filepath.Base(d.FileName); d.FileName != "" && name != "." && name != string(filepath.Separator) {
		return name
	}

	if u, err := url.Parse(d.URL); err == nil {
		if name := path.Base(u.Path); name != "." && name != "/" {
			return name
		}
	}

	return "download"
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening download: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %q: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)

		return fmt.Errorf("copying download to %q: %w", dst, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("closing %q: %w", dst, err)
	}

	return os.Remove(src)
}

// probeResult is the JSON output schema for one probed URL.
type probeResult struct {
	URL         string `json:"url"`
	Retrievable bool   `json:"retrievable"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	results := probeAll(cmd.Context(), newRetriever(buildLogger()), args)

	if flagJSON {
		return printJSON(os.Stdout, results)
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.URL, strconv.FormatBool(r.Retrievable)})
	}

	printTable(os.Stdout, []string{"URL", "RETRIEVABLE"}, rows)

	return nil
}

// probeAll runs CanRetrieve for every URL with bounded concurrency. Results
// keep the input order.
func probeAll(ctx context.Context, r *retriever.Retriever, urls []string) []probeResult {
	results := make([]probeResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)

	for i, u := range urls {
		g.Go(func() error {
			results[i] = probeResult{
				URL:         u,
				Retrievable: r.CanRetrieve(gctx, retriever.Descriptor{URL: u}),
			}

			return nil
		})
	}

	// Probes never fail; CanRetrieve folds errors into false.
	_ = g.Wait()

	return results
}
