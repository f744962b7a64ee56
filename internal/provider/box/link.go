package box

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tonimelisma/cloudbrowse/internal/provider"
)

type fileResponse struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// LinkFor resolves a signed download URL for a Box file. The content
// endpoint answers with a redirect whose Location is the short-lived URL.
func (p *Provider) LinkFor(ctx context.Context, resourceID string) (string, provider.LinkInfo, error) {
	accessToken, err := p.ensureToken(ctx)
	if err != nil {
		return "", provider.LinkInfo{}, err
	}

	escaped := url.PathEscape(resourceID)

	var file fileResponse
	if err := p.getJSON(ctx, accessToken, "/files/"+escaped, resourceID, &file); err != nil {
		return "", provider.LinkInfo{}, err
	}

	if file.Type != typeFile {
		return "", provider.LinkInfo{}, &provider.ProtocolError{
			Provider:   p.key,
			ResourceID: resourceID,
			Message:    fmt.Sprintf("expected file, got %q", file.Type),
		}
	}

	location, err := p.contentLocation(ctx, accessToken, "/files/"+escaped+"/content", resourceID)
	if err != nil {
		return "", provider.LinkInfo{}, err
	}

	info := provider.LinkInfo{
		Expires:  p.now().Add(provider.DefaultLinkLifetime),
		FileName: file.Name,
		FileSize: file.Size,
	}

	p.logger.Debug("resolved download link",
		slog.String("resource_id", resourceID),
		slog.Int64("size", file.Size),
	)

	return location, info, nil
}

// contentLocation requests the content endpoint without following the
// redirect and returns its Location.
func (p *Provider) contentLocation(ctx context.Context, accessToken, path, resourceID string) (string, error) {
	resp, err := p.send(ctx, p.noRedirect, accessToken, path, resourceID)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusMultipleChoices || resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", p.statusError(resp, resourceID)
		}

		return "", &provider.ProtocolError{
			Provider:   p.key,
			ResourceID: resourceID,
			StatusCode: resp.StatusCode,
			Message:    "content endpoint did not redirect",
		}
	}

	location, err := resp.Location()
	if err != nil {
		return "", &provider.ProtocolError{
			Provider:   p.key,
			ResourceID: resourceID,
			StatusCode: resp.StatusCode,
			Message:    "redirect without Location header",
			Err:        err,
		}
	}

	return location.String(), nil
}
