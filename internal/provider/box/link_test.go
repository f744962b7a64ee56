package box

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudbrowse/internal/provider"
)

const signedURL = "https://dl.boxcloud.com/d/1/B7Qd7B_iwPHTU4-71W2qYoTbvAaHCPzNsy5WTFHj5Xpbmyd/download"

func linkMux(t *testing.T, id, fixture string, content http.HandlerFunc) *http.ServeMux {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /2.0/files/"+id, serveFixture(t, fixture))
	mux.HandleFunc("GET /2.0/files/"+id+"/content", content)

	return mux
}

func redirectTo(location string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", location)
		w.WriteHeader(http.StatusFound)
	}
}

func TestLinkFor(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		fixture string
		file    string
		size    int64
	}{
		{"a file from the root directory", "25581309763", "file_failed_tar_gz.json", "failed.tar.gz", 28_650_839},
		{"a file from the SaS - Development Team directory", "76960974625", "file_equipment_boxnote.json", "Equipment.boxnote", 10140},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, linkMux(t, tt.id, tt.fixture, redirectTo(signedURL)))
			authorize(p)

			before := time.Now()

			link, info, err := p.LinkFor(context.Background(), tt.id)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(link, "https://dl.boxcloud.com/d/1"))
			assert.Equal(t, signedURL, link)
			assert.False(t, info.Expires.IsZero())
			assert.WithinDuration(t, before.Add(time.Hour), info.Expires, time.Minute)
			assert.Equal(t, tt.file, info.FileName)
			assert.Equal(t, tt.size, info.FileSize)
		})
	}
}

func TestLinkFor_ContentWithoutRedirect(t *testing.T) {
	content := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("raw bytes"))
	}

	p := newTestProvider(t, linkMux(t, "25581309763", "file_failed_tar_gz.json", content))
	authorize(p)

	_, _, err := p.LinkFor(context.Background(), "25581309763")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrProtocol)
	assert.Contains(t, err.Error(), "25581309763")
}

func TestLinkFor_RedirectWithoutLocation(t *testing.T) {
	content := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusFound)
	}

	p := newTestProvider(t, linkMux(t, "25581309763", "file_failed_tar_gz.json", content))
	authorize(p)

	_, _, err := p.LinkFor(context.Background(), "25581309763")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrProtocol)
	assert.Contains(t, err.Error(), "25581309763")
}

func TestLinkFor_ContentForbidden(t *testing.T) {
	content := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}

	p := newTestProvider(t, linkMux(t, "25581309763", "file_failed_tar_gz.json", content))
	authorize(p)

	_, _, err := p.LinkFor(context.Background(), "25581309763")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrForbidden)
}

func TestLinkFor_FolderRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /2.0/files/2459961273", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"folder","id":"2459961273","name":"SaS - Development Team"}`))
	})

	p := newTestProvider(t, mux)
	authorize(p)

	_, _, err := p.LinkFor(context.Background(), "2459961273")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrProtocol)
}

func TestLinkFor_NotAuthorized(t *testing.T) {
	p := newTestProvider(t, http.NewServeMux())

	_, _, err := p.LinkFor(context.Background(), "25581309763")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrNotAuthorized)
}
