package box

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/cloudbrowse/internal/metrics"
	"github.com/tonimelisma/cloudbrowse/internal/provider"
)

// maxErrorBody caps how much of an error response is kept in a ProtocolError.
const maxErrorBody = 4096

// send executes one API request with accessToken, which the operation
// resolved once through ensureToken. No retry: the first failure is
// returned. The caller owns the response body.
func (p *Provider) send(ctx context.Context, client *http.Client, accessToken, path, resourceID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return nil, fmt.Errorf("box: creating request for %q: %w", resourceID, err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordProviderRequest(p.key, 0)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("box: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("box: GET %s for %q: %w", path, resourceID, err)
	}

	metrics.RecordProviderRequest(p.key, resp.StatusCode)

	p.logger.Debug("box request",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// getJSON performs a GET that must answer 2xx and decodes the body into v.
func (p *Provider) getJSON(ctx context.Context, accessToken, path, resourceID string, v any) error {
	resp, err := p.send(ctx, p.httpClient, accessToken, path, resourceID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return p.statusError(resp, resourceID)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &provider.ProtocolError{
			Provider:   p.key,
			ResourceID: resourceID,
			Message:    "decoding response of " + path,
			Err:        err,
		}
	}

	return nil
}

// statusError drains a bounded amount of the body into a ProtocolError
// classified by status. Closes nothing; the caller owns the body.
func (p *Provider) statusError(resp *http.Response, resourceID string) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	reqID := resp.Header.Get("box-request-id")

	p.logger.Warn("box request failed",
		slog.String("resource_id", resourceID),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", reqID),
	)

	return &provider.ProtocolError{
		Provider:   p.key,
		ResourceID: resourceID,
		StatusCode: resp.StatusCode,
		RequestID:  reqID,
		Message:    string(body),
		Err:        provider.ClassifyStatus(resp.StatusCode),
	}
}
