// Package retriever streams the bytes behind a Descriptor from a local
// file or an HTTP(S) URL. Every entry point shares one streaming core:
// Retrieve delivers chunks to a callback, Chunks exposes them as an
// iterator, Download persists them to a temporary file.
//
// A Retriever holds only immutable configuration and is safe for
// concurrent use. It never retries and enforces no timeout of its own;
// callers bound latency through the context.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultChunkSize is the read buffer size used when Options.ChunkSize is 0.
const DefaultChunkSize = 64 << 10

const tempPrefix = "cloudbrowse-"

// ChunkFunc receives each chunk with the inclusive running byte count and
// the resolved total (-1 when unknown). Returning an error stops the
// stream and that error is returned to the caller. chunk is only valid
// for the duration of the call.
type ChunkFunc func(chunk []byte, retrieved, total int64) error

// Chunk is one element of the Chunks iterator. Data shares the stream's
// read buffer and is only valid until the next iteration; copy it to keep it.
type Chunk struct {
	Data      []byte
	Retrieved int64
	Total     int64
}

// Options configures a Retriever.
type Options struct {
	HTTPClient *http.Client
	ChunkSize  int
	// TempDir is where Download creates files; "" means os.TempDir().
	TempDir string
	// RejectExpired fails descriptors whose Expires has passed, before I/O.
	RejectExpired bool
	UserAgent     string
	Logger        *slog.Logger
}

// Retriever dispatches descriptors to the file or HTTP transport.
type Retriever struct {
	httpClient    *http.Client
	chunkSize     int
	tempDir       string
	rejectExpired bool
	userAgent     string
	logger        *slog.Logger
}

// New returns a Retriever. Zero options select defaults.
func New(opts Options) *Retriever {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Retriever{
		httpClient:    httpClient,
		chunkSize:     chunkSize,
		tempDir:       opts.TempDir,
		rejectExpired: opts.RejectExpired,
		userAgent:     opts.UserAgent,
		logger:        logger,
	}
}

// Retrieve streams d to fn, one call per chunk.
func (r *Retriever) Retrieve(ctx context.Context, d Descriptor, fn ChunkFunc) error {
	s, err := r.Open(ctx, d)
	if err != nil {
		return err
	}
	defer s.Close()

	return drain(s, fn)
}

// Chunks returns d's bytes as an iterator. Breaking out of the loop closes
// the underlying handle. A failure is yielded once as the final element.
func (r *Retriever) Chunks(ctx context.Context, d Descriptor) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		s, err := r.Open(ctx, d)
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		defer s.Close()

		for {
			data, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}

			if err != nil {
				yield(Chunk{}, err)
				return
			}

			if !yield(Chunk{Data: data, Retrieved: s.Retrieved(), Total: s.Total()}, nil) {
				return
			}
		}
	}
}

// Download streams d into a new temporary file and returns its path. fn,
// when non-nil, also receives every chunk. On any failure the temporary
// file is removed and no path is returned.
func (r *Retriever) Download(ctx context.Context, d Descriptor, fn ChunkFunc) (string, error) {
	s, err := r.Open(ctx, d)
	if err != nil {
		return "", err
	}
	defer s.Close()

	f, err := os.CreateTemp(r.tempDir, tempPrefix+"*"+safeExt(d.FileName))
	if err != nil {
		return "", fmt.Errorf("retriever: creating temp file: %w", err)
	}

	success := false

	defer func() {
		if !success {
			f.Close()

			if removeErr := os.Remove(f.Name()); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				r.logger.Warn("failed to remove temp file",
					slog.String("path", f.Name()),
					slog.String("error", removeErr.Error()),
				)
			}
		}
	}()

	err = drain(s, func(chunk []byte, retrieved, total int64) error {
		if _, writeErr := f.Write(chunk); writeErr != nil {
			return fmt.Errorf("retriever: writing temp file: %w", writeErr)
		}

		if fn != nil {
			return fn(chunk, retrieved, total)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("retriever: closing temp file: %w", err)
	}

	success = true

	r.logger.Debug("download complete",
		slog.String("path", f.Name()),
		slog.Int64("bytes", s.Retrieved()),
	)

	return f.Name(), nil
}

// CanRetrieve probes whether d looks retrievable without transferring the
// body: a regular file must exist, an HTTP(S) URL must answer a one-byte
// ranged GET with 2xx. Any failure reports false.
func (r *Retriever) CanRetrieve(ctx context.Context, d Descriptor) bool {
	u, scheme, err := parseDescriptorURL(d.URL)
	if err != nil {
		return false
	}

	if scheme == schemeFile {
		info, statErr := os.Stat(u.Path)
		return statErr == nil && info.Mode().IsRegular()
	}

	req, err := r.newRequest(ctx, u, d)
	if err != nil {
		return false
	}

	req.Header.Set("Range", "bytes=0-0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Debug("probe failed", slog.String("error", stripURL(err).Error()))
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
}

func drain(s *Stream, fn ChunkFunc) error {
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		if err := fn(chunk, s.Retrieved(), s.Total()); err != nil {
			s.failed = true
			return err
		}
	}
}

// safeExt keeps a short plain extension from name for the temp file.
func safeExt(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	if len(ext) < 2 || len(ext) > 16 || strings.ContainsAny(ext, `/\*`) {
		return ""
	}

	return ext
}
