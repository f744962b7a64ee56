package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Category sentinels. Use errors.Is(err, provider.ErrNotAuthorized) to check.
var (
	ErrInitialization = errors.New("provider: invalid configuration")
	ErrNotAuthorized  = errors.New("provider: not authorized")
	ErrProtocol       = errors.New("provider: unexpected backend response")
)

// Status sentinels carried by ProtocolError for HTTP classification.
var (
	ErrBadRequest   = errors.New("provider: bad request")
	ErrUnauthorized = errors.New("provider: unauthorized")
	ErrForbidden    = errors.New("provider: forbidden")
	ErrNotFound     = errors.New("provider: not found")
	ErrThrottled    = errors.New("provider: throttled")
	ErrServerError  = errors.New("provider: server error")
)

// InitializationError reports missing or invalid construction config.
// It is fatal: no provider instance is produced.
type InitializationError struct {
	Provider string
	Missing  []string
	Reason   string
}

func (e *InitializationError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "provider %q: invalid configuration", e.Provider)

	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}

	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}

	return b.String()
}

func (e *InitializationError) Unwrap() error {
	return ErrInitialization
}

// AuthorizationError reports an operation attempted without a valid token,
// or a callback that cannot be accepted. Recoverable by reconnecting.
type AuthorizationError struct {
	Provider string
	Reason   string
	Err      error // underlying cause, may be nil
}

func (e *AuthorizationError) Error() string {
	msg := fmt.Sprintf("provider %q: not authorized: %s", e.Provider, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrNotAuthorized
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// ProtocolError reports an unexpected backend status or payload shape.
// ResourceID is always part of the message so callers can retry or report.
type ProtocolError struct {
	Provider   string
	ResourceID string
	StatusCode int // 0 when the failure was not an HTTP status
	RequestID  string
	Message    string
	Err        error // status sentinel or decode error, for errors.Is()
}

func (e *ProtocolError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "provider %q: resource %q", e.Provider, e.ResourceID)

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}

	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request-id: %s)", e.RequestID)
	}

	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}

	if e.Err != nil && e.StatusCode == 0 {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to a status sentinel.
// Returns nil for codes with no dedicated sentinel.
func ClassifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
