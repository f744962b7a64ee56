package retriever

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDataSize = 2256

const testBearer = "Bearer ya29.kQCEAHj1bwFXr2AuGQJmSGRWQXpacmmYZs4kzCiXns3d6H1ZpIDWmdM8"

// testData returns deterministic non-repeating-looking bytes.
func testData() []byte {
	data := make([]byte, testDataSize)
	for i := range data {
		data[i] = byte((i*31 + 7) % 251)
	}

	return data
}

// writeFixtures creates "file_1.pdf" and "file 1.pdf" with testData.
func writeFixtures(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file_1.pdf"), testData(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file 1.pdf"), testData(), 0o644))

	return dir
}

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

type callback struct {
	chunk     []byte
	retrieved int64
	total     int64
}

// collect records every callback, copying chunk bytes.
func collect(calls *[]callback) ChunkFunc {
	return func(chunk []byte, retrieved, total int64) error {
		*calls = append(*calls, callback{chunk: bytes.Clone(chunk), retrieved: retrieved, total: total})
		return nil
	}
}

func concat(calls []callback) []byte {
	var buf bytes.Buffer
	for _, c := range calls {
		buf.Write(c.chunk)
	}

	return buf.Bytes()
}

// assertChunkContract checks monotonic retrieved counts that sum chunk
// lengths, a constant total, and retrieved == total on the final call.
func assertChunkContract(t *testing.T, calls []callback, wantTotal int64) {
	t.Helper()

	require.NotEmpty(t, calls)

	var sum int64

	for _, c := range calls {
		sum += int64(len(c.chunk))
		assert.Equal(t, sum, c.retrieved)
		assert.Equal(t, wantTotal, c.total)
	}

	assert.Equal(t, wantTotal, calls[len(calls)-1].retrieved)
}

// newHTTPServer serves testData at /some/dir/file.pdf (requiring the bearer
// header), 500 at /some/dir/file_error.pdf, and probe endpoints.
func newHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /some/dir/file.pdf", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != testBearer {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		http.ServeContent(w, r, "file.pdf", time.Time{}, bytes.NewReader(testData()))
	})
	mux.HandleFunc("GET /some/dir/file_error.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /some/dir/can_retrieve.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "can_retrieve.pdf", time.Time{}, bytes.NewReader(testData()))
	})
	mux.HandleFunc("GET /some/dir/cannot_retrieve.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func httpDescriptor(srv *httptest.Server, path string) Descriptor {
	return Descriptor{
		URL:      srv.URL + path,
		Headers:  map[string]string{"Authorization": testBearer},
		Expires:  time.Now().Add(time.Hour),
		FileName: "file.pdf",
		FileSize: testDataSize,
	}
}

// trackingBody records whether it was closed.
type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

// stubTransport answers every request with body and counts round trips.
type stubTransport struct {
	calls  atomic.Int32
	status int
	body   *trackingBody
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls.Add(1)

	return &http.Response{
		StatusCode:    s.status,
		Header:        http.Header{},
		Body:          s.body,
		ContentLength: -1,
		Request:       req,
	}, nil
}

func newStub(data []byte) *stubTransport {
	return &stubTransport{status: http.StatusOK, body: &trackingBody{Reader: bytes.NewReader(data)}}
}

func TestRetrieve_File(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{})

	var calls []callback

	err := r.Retrieve(context.Background(), Descriptor{
		URL:      fileURL(filepath.Join(dir, "file_1.pdf")),
		FileName: "file.pdf",
		FileSize: testDataSize,
	}, collect(&calls))
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, testData(), calls[0].chunk)
	assert.Equal(t, int64(testDataSize), calls[0].retrieved)
	assert.Equal(t, int64(testDataSize), calls[0].total)
}

func TestRetrieve_FileTotalIgnoresHint(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{})

	var calls []callback

	err := r.Retrieve(context.Background(), Descriptor{
		URL:      fileURL(filepath.Join(dir, "file_1.pdf")),
		FileSize: 1,
	}, collect(&calls))
	require.NoError(t, err)
	assertChunkContract(t, calls, testDataSize)
}

func TestRetrieve_FileWithSpaces(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{})

	escaped := fileURL(filepath.Join(dir, "file 1.pdf"))
	assert.Contains(t, escaped, "file%201.pdf")

	raw := "file://" + filepath.ToSlash(filepath.Join(dir, "file 1.pdf"))

	for _, u := range []string{escaped, raw} {
		var calls []callback

		require.NoError(t, r.Retrieve(context.Background(), Descriptor{URL: u}, collect(&calls)), u)
		assert.Equal(t, testData(), concat(calls), u)
	}
}

func TestRetrieve_FileSmallChunks(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{ChunkSize: 100})

	var calls []callback

	err := r.Retrieve(context.Background(), Descriptor{URL: fileURL(filepath.Join(dir, "file_1.pdf"))}, collect(&calls))
	require.NoError(t, err)

	assert.Len(t, calls, 23)
	assert.Equal(t, testData(), concat(calls))
	assertChunkContract(t, calls, testDataSize)
}

func TestRetrieve_FileMissing(t *testing.T) {
	r := New(Options{})

	err := r.Retrieve(context.Background(), Descriptor{URL: fileURL(filepath.Join(t.TempDir(), "nope.pdf"))}, collect(new([]callback)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRetrieve_HTTP(t *testing.T) {
	srv := newHTTPServer(t)
	r := New(Options{HTTPClient: srv.Client()})

	var calls []callback

	err := r.Retrieve(context.Background(), httpDescriptor(srv, "/some/dir/file.pdf"), collect(&calls))
	require.NoError(t, err)

	assert.Equal(t, testData(), concat(calls))
	assertChunkContract(t, calls, testDataSize)
}

func TestRetrieve_HTTPTotalFromContentLength(t *testing.T) {
	srv := newHTTPServer(t)
	r := New(Options{HTTPClient: srv.Client()})

	d := httpDescriptor(srv, "/some/dir/file.pdf")
	d.FileSize = 0

	var calls []callback

	require.NoError(t, r.Retrieve(context.Background(), d, collect(&calls)))
	assertChunkContract(t, calls, testDataSize)
}

func TestRetrieve_HTTPTotalFromHintHeldConstant(t *testing.T) {
	srv := newHTTPServer(t)
	r := New(Options{HTTPClient: srv.Client()})

	d := httpDescriptor(srv, "/some/dir/file.pdf")
	d.FileSize = 1234

	var calls []callback

	require.NoError(t, r.Retrieve(context.Background(), d, collect(&calls)))

	for _, c := range calls {
		assert.Equal(t, int64(1234), c.total)
	}

	assert.Equal(t, testData(), concat(calls))
}

func TestRetrieve_HTTPUnknownTotal(t *testing.T) {
	stub := newStub(testData())
	r := New(Options{HTTPClient: &http.Client{Transport: stub}})

	var calls []callback

	require.NoError(t, r.Retrieve(context.Background(), Descriptor{URL: "https://retrieve.cloud.example.com/x"}, collect(&calls)))

	for _, c := range calls {
		assert.Equal(t, int64(-1), c.total)
	}

	assert.Equal(t, testData(), concat(calls))
	assert.True(t, stub.body.closed.Load())
}

func TestRetrieve_UnsupportedScheme(t *testing.T) {
	stub := newStub(nil)
	r := New(Options{HTTPClient: &http.Client{Transport: stub}})

	called := false

	err := r.Retrieve(context.Background(), Descriptor{URL: "ftp://invalid"}, func([]byte, int64, int64) error {
		called = true
		return nil
	})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrUnsupportedScheme)
	assert.EqualError(t, err, "retriever: unknown URI scheme: ftp")

	var schemeErr *SchemeError
	require.ErrorAs(t, err, &schemeErr)
	assert.Equal(t, "ftp", schemeErr.Scheme)

	assert.False(t, called)
	assert.Zero(t, stub.calls.Load())
}

func TestRetrieve_NonURI(t *testing.T) {
	r := New(Options{})

	err := r.Retrieve(context.Background(), Descriptor{
		URL:      "/some/dir/file.pdf",
		FileName: "file.pdf",
		FileSize: testDataSize,
	}, collect(new([]callback)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestRetrieve_CallbackErrorStops(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{ChunkSize: 100})

	stop := errors.New("enough")
	calls := 0

	err := r.Retrieve(context.Background(), Descriptor{URL: fileURL(filepath.Join(dir, "file_1.pdf"))},
		func([]byte, int64, int64) error {
			calls++
			if calls == 3 {
				return stop
			}

			return nil
		})

	require.ErrorIs(t, err, stop)
	assert.Equal(t, 3, calls)
}

func TestRetrieve_CanceledContext(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Retrieve(ctx, Descriptor{URL: fileURL(filepath.Join(dir, "file_1.pdf"))}, collect(new([]callback)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetrieve_RejectExpired(t *testing.T) {
	stub := newStub(testData())
	expired := Descriptor{URL: "https://retrieve.cloud.example.com/x", Expires: time.Now().Add(-time.Minute)}

	strict := New(Options{HTTPClient: &http.Client{Transport: stub}, RejectExpired: true})

	err := strict.Retrieve(context.Background(), expired, collect(new([]callback)))
	require.ErrorIs(t, err, ErrLinkExpired)
	assert.Zero(t, stub.calls.Load())

	lenient := New(Options{HTTPClient: &http.Client{Transport: stub}})

	var calls []callback

	require.NoError(t, lenient.Retrieve(context.Background(), expired, collect(&calls)))
	assert.Equal(t, testData(), concat(calls))
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestDownloadError_RedactsQuery(t *testing.T) {
	stub := newStub(nil)
	stub.status = http.StatusForbidden
	r := New(Options{HTTPClient: &http.Client{Transport: stub}})

	err := r.Retrieve(context.Background(), Descriptor{URL: "https://dl.boxcloud.com/d/1/abc/download?sig=secret"}, collect(new([]callback)))
	require.Error(t, err)

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusForbidden, dlErr.StatusCode)
	assert.Equal(t, "https://dl.boxcloud.com/d/1/abc/download", dlErr.URL)
	assert.NotContains(t, err.Error(), "secret")
	assert.True(t, stub.body.closed.Load())
}

func TestDownload_HTTP(t *testing.T) {
	srv := newHTTPServer(t)
	tmp := t.TempDir()
	r := New(Options{HTTPClient: srv.Client(), TempDir: tmp})

	var calls []callback

	path, err := r.Download(context.Background(), httpDescriptor(srv, "/some/dir/file.pdf"), collect(&calls))
	require.NoError(t, err)

	assert.Equal(t, tmp, filepath.Dir(path))
	assert.Equal(t, ".pdf", filepath.Ext(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testData(), got)
	assertChunkContract(t, calls, testDataSize)
}

func TestDownload_FileWithoutCallback(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{TempDir: t.TempDir()})

	path, err := r.Download(context.Background(), Descriptor{URL: fileURL(filepath.Join(dir, "file_1.pdf"))}, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testData(), got)
}

func TestDownload_ServerError(t *testing.T) {
	srv := newHTTPServer(t)
	tmp := t.TempDir()
	r := New(Options{HTTPClient: srv.Client(), TempDir: tmp})

	path, err := r.Download(context.Background(), httpDescriptor(srv, "/some/dir/file_error.pdf"), nil)
	require.Error(t, err)
	assert.Empty(t, path)

	assert.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "failed to download")
	assert.Contains(t, err.Error(), "/some/dir/file_error.pdf")

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusInternalServerError, dlErr.StatusCode)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_CallbackFailureRemovesTempFile(t *testing.T) {
	dir := writeFixtures(t)
	tmp := t.TempDir()
	r := New(Options{TempDir: tmp, ChunkSize: 100})

	stop := errors.New("disk quota")

	path, err := r.Download(context.Background(), Descriptor{URL: fileURL(filepath.Join(dir, "file_1.pdf"))},
		func(_ []byte, retrieved, _ int64) error {
			if retrieved >= 500 {
				return stop
			}

			return nil
		})
	require.ErrorIs(t, err, stop)
	assert.Empty(t, path)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChunks(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{ChunkSize: 1000})

	var (
		buf  bytes.Buffer
		last Chunk
	)

	for chunk, err := range r.Chunks(context.Background(), Descriptor{URL: fileURL(filepath.Join(dir, "file_1.pdf"))}) {
		require.NoError(t, err)
		buf.Write(chunk.Data)
		last = chunk
	}

	assert.Equal(t, testData(), buf.Bytes())
	assert.Equal(t, int64(testDataSize), last.Retrieved)
	assert.Equal(t, int64(testDataSize), last.Total)
}

func TestChunks_BreakClosesHandle(t *testing.T) {
	stub := newStub(testData())
	r := New(Options{HTTPClient: &http.Client{Transport: stub}, ChunkSize: 10})

	n := 0

	for _, err := range r.Chunks(context.Background(), Descriptor{URL: "https://retrieve.cloud.example.com/x"}) {
		require.NoError(t, err)

		n++
		if n == 2 {
			break
		}
	}

	assert.Equal(t, 2, n)
	assert.True(t, stub.body.closed.Load())
}

func TestChunks_OpenErrorYieldedOnce(t *testing.T) {
	r := New(Options{})

	var errs []error

	for _, err := range r.Chunks(context.Background(), Descriptor{URL: "ftp://invalid"}) {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnsupportedScheme)
}

func TestStream_CloseIdempotent(t *testing.T) {
	dir := writeFixtures(t)
	r := New(Options{})

	s, err := r.Open(context.Background(), Descriptor{URL: fileURL(filepath.Join(dir, "file_1.pdf"))})
	require.NoError(t, err)
	assert.Equal(t, int64(testDataSize), s.Total())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Next()
	require.Error(t, err)
}

func TestCanRetrieve(t *testing.T) {
	srv := newHTTPServer(t)
	dir := writeFixtures(t)
	r := New(Options{HTTPClient: srv.Client()})
	ctx := context.Background()

	t.Run("can retrieve", func(t *testing.T) {
		assert.True(t, r.CanRetrieve(ctx, httpDescriptor(srv, "/some/dir/can_retrieve.pdf")))
	})

	t.Run("cannot retrieve", func(t *testing.T) {
		assert.False(t, r.CanRetrieve(ctx, httpDescriptor(srv, "/some/dir/cannot_retrieve.pdf")))
	})

	t.Run("local file", func(t *testing.T) {
		assert.True(t, r.CanRetrieve(ctx, Descriptor{URL: fileURL(filepath.Join(dir, "file 1.pdf"))}))
		assert.False(t, r.CanRetrieve(ctx, Descriptor{URL: fileURL(filepath.Join(dir, "missing.pdf"))}))
		assert.False(t, r.CanRetrieve(ctx, Descriptor{URL: fileURL(dir)}))
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		assert.False(t, r.CanRetrieve(ctx, Descriptor{URL: "ftp://invalid"}))
	})
}

func TestCanRetrieve_SendsRangeAndHeaders(t *testing.T) {
	var got http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusPartialContent)
	}))
	t.Cleanup(srv.Close)

	r := New(Options{HTTPClient: srv.Client(), UserAgent: "cloudbrowse-test"})

	ok := r.CanRetrieve(context.Background(), Descriptor{
		URL:     srv.URL + "/probe",
		Headers: map[string]string{"Authorization": testBearer},
	})
	require.True(t, ok)

	assert.Equal(t, "bytes=0-0", got.Get("Range"))
	assert.Equal(t, testBearer, got.Get("Authorization"))
	assert.Equal(t, "cloudbrowse-test", got.Get("User-Agent"))
}
