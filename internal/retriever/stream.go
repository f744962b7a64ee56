package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tonimelisma/cloudbrowse/internal/metrics"
)

// Supported URL schemes.
const (
	schemeFile  = "file"
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// maxDrain bounds how much of an error response body is discarded before
// closing, so the connection can be reused.
const maxDrain = 64 << 10

// Stream is one open retrieval. Chunks are read with Next until io.EOF.
// A Stream is not safe for concurrent use; Close must always be called.
type Stream struct {
	ctx       context.Context
	body      io.ReadCloser
	buf       []byte
	scheme    string
	source    string // redacted URL for errors
	total     int64
	retrieved int64
	started   time.Time
	logger    *slog.Logger

	done   bool // io.EOF reached
	failed bool
	closed bool
}

// Open validates the descriptor, opens its transport and resolves the total
// size. Scheme and expiry problems fail before any I/O.
func (r *Retriever) Open(ctx context.Context, d Descriptor) (*Stream, error) {
	u, scheme, err := parseDescriptorURL(d.URL)
	if err != nil {
		return nil, err
	}

	if r.rejectExpired && d.Expired(time.Now()) {
		return nil, fmt.Errorf("retriever: %s expired at %s: %w",
			redactURL(u), d.Expires.Format(time.RFC3339), ErrLinkExpired)
	}

	var (
		body  io.ReadCloser
		total int64
	)

	switch scheme {
	case schemeFile:
		body, total, err = openFile(u)
	default:
		body, total, err = r.openHTTP(ctx, u, d)
	}

	if err != nil {
		metrics.RecordRetrieval(scheme, metrics.OutcomeFailure, 0, 0)
		return nil, err
	}

	r.logger.Debug("retrieval opened",
		slog.String("scheme", scheme),
		slog.String("file_name", d.FileName),
		slog.Int64("total", total),
	)

	return &Stream{
		ctx:     ctx,
		body:    body,
		buf:     make([]byte, r.chunkSize),
		scheme:  scheme,
		source:  redactURL(u),
		total:   total,
		started: time.Now(),
		logger:  r.logger,
	}, nil
}

// Total is the resolved size: the file length for file URLs, else the
// FileSize hint, else the transport's Content-Length, else -1. It is fixed
// when the stream opens.
func (s *Stream) Total() int64 { return s.total }

// Retrieved is the number of bytes returned by Next so far.
func (s *Stream) Retrieved() int64 { return s.retrieved }

// Next returns the next chunk, or io.EOF once the resource is exhausted.
// The returned slice is only valid until the following call.
func (s *Stream) Next() ([]byte, error) {
	if s.closed {
		return nil, fmt.Errorf("retriever: read from closed stream")
	}

	if s.done {
		return nil, io.EOF
	}

	if err := s.ctx.Err(); err != nil {
		s.failed = true
		return nil, err
	}

	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.retrieved += int64(n)
			// A short read with an error still delivers its bytes; the
			// error surfaces on the following call.
			return s.buf[:n], nil
		}

		if errors.Is(err, io.EOF) {
			s.done = true
			s.checkTotal()

			return nil, io.EOF
		}

		if err != nil {
			s.failed = true

			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			return nil, &DownloadError{URL: s.source, Err: err}
		}
	}
}

// Close releases the underlying file or connection. Safe to call twice.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	outcome := metrics.OutcomeSuccess

	switch {
	case s.failed && s.ctx.Err() != nil:
		outcome = metrics.OutcomeCanceled
	case s.failed:
		outcome = metrics.OutcomeFailure
	case !s.done:
		outcome = metrics.OutcomeCanceled
	}

	metrics.RecordRetrieval(s.scheme, outcome, s.retrieved, time.Since(s.started))

	if err := s.body.Close(); err != nil {
		return fmt.Errorf("retriever: closing stream: %w", err)
	}

	return nil
}

func (s *Stream) checkTotal() {
	if s.total >= 0 && s.total != s.retrieved {
		s.logger.Warn("retrieved size differs from expected total",
			slog.String("scheme", s.scheme),
			slog.Int64("total", s.total),
			slog.Int64("retrieved", s.retrieved),
		)
	}
}

// parseDescriptorURL dispatches on scheme without touching the network or
// the file system.
func parseDescriptorURL(raw string) (*url.URL, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", &SchemeError{Reason: stripURL(err).Error()}
	}

	scheme := strings.ToLower(u.Scheme)

	switch scheme {
	case "":
		return nil, "", &SchemeError{Reason: fmt.Sprintf("%q has no scheme", raw)}
	case schemeFile:
		if u.Host != "" && u.Host != "localhost" {
			return nil, "", &SchemeError{Scheme: scheme, Reason: fmt.Sprintf("file URL with remote host %q", u.Host)}
		}

		if u.Path == "" {
			return nil, "", &SchemeError{Scheme: scheme, Reason: "file URL without a path"}
		}
	case schemeHTTP, schemeHTTPS:
		if u.Host == "" {
			return nil, "", &SchemeError{Scheme: scheme, Reason: "http URL without a host"}
		}
	default:
		return nil, "", &SchemeError{Scheme: u.Scheme}
	}

	return u, scheme, nil
}

// openFile opens the decoded path of a file URL, so "file%201.pdf" and
// "file 1.pdf" resolve to the same file.
func openFile(u *url.URL) (io.ReadCloser, int64, error) {
	source := redactURL(u)

	f, err := os.Open(u.Path)
	if err != nil {
		return nil, 0, &DownloadError{URL: source, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, &DownloadError{URL: source, Err: err}
	}

	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, &DownloadError{URL: source, Err: fmt.Errorf("not a regular file")}
	}

	return f, info.Size(), nil
}

func (r *Retriever) openHTTP(ctx context.Context, u *url.URL, d Descriptor) (io.ReadCloser, int64, error) {
	source := redactURL(u)

	req, err := r.newRequest(ctx, u, d)
	if err != nil {
		return nil, 0, &DownloadError{URL: source, Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("retriever: request canceled: %w", ctx.Err())
		}

		return nil, 0, &DownloadError{URL: source, Err: stripURL(err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrain)
		resp.Body.Close()

		r.logger.Warn("retrieval rejected",
			slog.String("scheme", u.Scheme),
			slog.Int("status", resp.StatusCode),
		)

		return nil, 0, &DownloadError{URL: source, StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	if d.FileSize > 0 {
		total = d.FileSize
	}

	return resp.Body, total, nil
}

func (r *Retriever) newRequest(ctx context.Context, u *url.URL, d Descriptor) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// stripURL drops the *url.Error wrapper, whose message repeats the full
// request URL including any signed query.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}

	return err
}
