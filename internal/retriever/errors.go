package retriever

import (
	"errors"
	"fmt"
	"net/url"
)

// Sentinel errors for retrieval failures. Use errors.Is to check the
// category; use errors.As with *SchemeError or *DownloadError for detail.
var (
	ErrUnsupportedScheme = errors.New("retriever: unsupported URI scheme")
	ErrDownload          = errors.New("retriever: download failed")
	ErrLinkExpired       = errors.New("retriever: link expired")
)

// SchemeError reports a descriptor URL that cannot be dispatched to a
// transport. It is returned before any file or network I/O.
type SchemeError struct {
	Scheme string
	Reason string // set when the URL has no usable scheme
}

func (e *SchemeError) Error() string {
	if e.Reason != "" {
		return "retriever: bad URI: " + e.Reason
	}

	return "retriever: unknown URI scheme: " + e.Scheme
}

func (e *SchemeError) Unwrap() error {
	return ErrUnsupportedScheme
}

// DownloadError reports a non-success status or a transport failure while
// streaming. URL never carries the query string, which often holds a
// signature.
type DownloadError struct {
	URL        string
	StatusCode int   // 0 when the failure was not an HTTP status
	Err        error // transport or read failure, may be nil
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retriever: failed to download %s: HTTP %d", e.URL, e.StatusCode)
	}

	return fmt.Sprintf("retriever: failed to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// redactURL strips credentials, query and fragment from u for messages.
func redactURL(u *url.URL) string {
	clean := *u
	clean.User = nil
	clean.RawQuery = ""
	clean.ForceQuery = false
	clean.Fragment = ""
	clean.RawFragment = ""

	return clean.String()
}
