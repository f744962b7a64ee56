package box

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tonimelisma/cloudbrowse/internal/provider"
	"github.com/tonimelisma/cloudbrowse/internal/resource"
)

const (
	rootFolderID = "0"
	pageLimit    = 1000
	itemFields   = "name,size,created_at"

	typeFolder = "folder"
	typeFile   = "file"
)

// folderResponse is the subset of GET /folders/{id} the driver reads.
type folderResponse struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// itemsResponse is one page of GET /folders/{id}/items.
type itemsResponse struct {
	TotalCount int64          `json:"total_count"`
	Entries    []itemResponse `json:"entries"`
	Offset     int64          `json:"offset"`
	Limit      int64          `json:"limit"`
}

type itemResponse struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

// Contents lists a Box folder in backend order. "" lists the root folder.
func (p *Provider) Contents(ctx context.Context, containerID string) ([]resource.Entry, error) {
	folderID := containerID
	if folderID == "" {
		folderID = rootFolderID
	}

	accessToken, err := p.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	var folder folderResponse
	if err := p.getJSON(ctx, accessToken, "/folders/"+url.PathEscape(folderID), folderID, &folder); err != nil {
		return nil, err
	}

	if folder.Type != typeFolder {
		return nil, &provider.ProtocolError{
			Provider:   p.key,
			ResourceID: folderID,
			Message:    fmt.Sprintf("expected folder, got %q", folder.Type),
		}
	}

	items, err := p.fetchAllItems(ctx, accessToken, folderID)
	if err != nil {
		return nil, err
	}

	entries := make([]resource.Entry, 0, len(items))
	for i := range items {
		entries = append(entries, p.toEntry(&items[i]))
	}

	p.logger.Debug("listed folder",
		slog.String("folder_id", folderID),
		slog.String("name", folder.Name),
		slog.Int("count", len(entries)),
	)

	return entries, nil
}

// fetchAllItems follows offset pagination until every item is collected
// or the backend returns an empty page.
func (p *Provider) fetchAllItems(ctx context.Context, accessToken, folderID string) ([]itemResponse, error) {
	var all []itemResponse

	var offset int64

	for page := 1; ; page++ {
		path := fmt.Sprintf("/folders/%s/items?fields=%s&limit=%d&offset=%d",
			url.PathEscape(folderID), itemFields, pageLimit, offset)

		var resp itemsResponse
		if err := p.getJSON(ctx, accessToken, path, folderID, &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Entries...)

		p.logger.Debug("fetched items page",
			slog.String("folder_id", folderID),
			slog.Int("page", page),
			slog.Int("count", len(resp.Entries)),
			slog.Int64("total_count", resp.TotalCount),
		)

		offset = resp.Offset + int64(len(resp.Entries))
		if len(resp.Entries) == 0 || offset >= resp.TotalCount {
			return all, nil
		}
	}
}

func (p *Provider) toEntry(item *itemResponse) resource.Entry {
	isFolder := item.Type == typeFolder

	size := item.Size
	if isFolder || size < 0 {
		size = 0
	}

	entry := resource.NewEntry(p.key, item.ID, item.Name, size, isFolder)
	entry.ModTime = p.parseTimestamp(item.CreatedAt, item.ID)

	return entry
}

// parseTimestamp parses an RFC 3339 timestamp, returning the zero time for
// empty or malformed values.
func (p *Provider) parseTimestamp(s, itemID string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		p.logger.Warn("unparseable created_at",
			slog.String("item_id", itemID),
			slog.String("value", s),
		)

		return time.Time{}
	}

	return t
}
