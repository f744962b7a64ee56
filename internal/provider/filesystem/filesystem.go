// Package filesystem implements the provider contract over a local
// directory tree. It needs no authorization and resolves leaves to
// file:// URLs the retriever can stream directly.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudbrowse/internal/provider"
	"github.com/tonimelisma/cloudbrowse/internal/resource"
)

// OptionHome is the config key naming the directory exposed as the root.
const OptionHome = "home"

const displayName = "File System"

// Provider exposes one local directory tree. Resource ids are slash
// separated paths relative to home, using on-disk names.
type Provider struct {
	key    string
	home   string
	logger *slog.Logger
	now    func() time.Time
}

// New returns a file-system provider rooted at the "home" option, which
// must name an existing directory.
func New(key string, cfg provider.Config, logger *slog.Logger) (*Provider, error) {
	home := cfg.Option(OptionHome)
	if home == "" {
		return nil, &provider.InitializationError{Provider: key, Missing: []string{OptionHome}}
	}

	abs, err := filepath.Abs(home)
	if err != nil {
		return nil, &provider.InitializationError{Provider: key, Reason: err.Error()}
	}

	// Escape checks compare resolved paths, so home itself is resolved once.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, &provider.InitializationError{Provider: key, Reason: err.Error()}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, &provider.InitializationError{Provider: key, Reason: err.Error()}
	}

	if !info.IsDir() {
		return nil, &provider.InitializationError{Provider: key, Reason: fmt.Sprintf("home %q is not a directory", abs)}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		key:    key,
		home:   abs,
		logger: logger.With(slog.String("provider", key)),
		now:    time.Now,
	}, nil
}

// Key returns the configured provider key.
func (p *Provider) Key() string { return p.key }

// Name returns "File System".
func (p *Provider) Name() string { return displayName }

// AuthLink returns "": local directories need no authorization.
func (p *Provider) AuthLink(context.Context) (string, error) { return "", nil }

// Authorized is always true.
func (p *Provider) Authorized() bool { return true }

// Connect is a no-op.
func (p *Provider) Connect(context.Context, provider.AuthParams) error { return nil }

// Contents lists a directory below home, containers first, then by name.
func (p *Provider) Contents(ctx context.Context, containerID string) ([]resource.Entry, error) {
	dir, err := p.resolve(containerID)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, p.fsError(containerID, err)
	}

	entries := make([]resource.Entry, 0, len(dirEntries))

	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entryPath := filepath.Join(dir, de.Name())

		if de.Type()&fs.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(entryPath)
			if err != nil || !p.contains(target) {
				p.logger.Debug("skipping symlink outside home", slog.String("name", de.Name()))
				continue
			}
		}

		// Stat follows symlinks so a linked directory lists as a container.
		info, err := os.Stat(entryPath)
		if err != nil {
			p.logger.Warn("skipping unreadable entry",
				slog.String("name", de.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		entries = append(entries, p.toEntry(containerID, de.Name(), info))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsContainer != entries[j].IsContainer {
			return entries[i].IsContainer
		}

		return entries[i].Name < entries[j].Name
	})

	p.logger.Debug("listed directory",
		slog.String("container_id", containerID),
		slog.Int("count", len(entries)),
	)

	return entries, nil
}

// LinkFor returns a file:// URL for a regular file below home.
func (p *Provider) LinkFor(_ context.Context, resourceID string) (string, provider.LinkInfo, error) {
	full, err := p.resolve(resourceID)
	if err != nil {
		return "", provider.LinkInfo{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return "", provider.LinkInfo{}, p.fsError(resourceID, err)
	}

	if info.IsDir() {
		return "", provider.LinkInfo{}, &provider.ProtocolError{
			Provider:   p.key,
			ResourceID: resourceID,
			Message:    "containers have no download link",
		}
	}

	link := (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String()

	return link, provider.LinkInfo{
		Expires:  p.now().Add(provider.DefaultLinkLifetime),
		FileName: norm.NFC.String(info.Name()),
		FileSize: info.Size(),
	}, nil
}

func (p *Provider) toEntry(parentID, diskName string, info fs.FileInfo) resource.Entry {
	id := path.Join(parentID, diskName)

	var size int64
	if !info.IsDir() {
		size = info.Size()
	}

	entry := resource.NewEntry(p.key, id, norm.NFC.String(diskName), size, info.IsDir())
	entry.ModTime = info.ModTime()

	return entry
}

// resolve maps a resource id to an absolute path with symlinks evaluated,
// rejecting ids whose text or link target escapes home.
func (p *Provider) resolve(id string) (string, error) {
	full := filepath.Join(p.home, filepath.FromSlash(id))
	if !p.contains(full) {
		return "", p.escapeError(id)
	}

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", p.fsError(id, err)
	}

	if !p.contains(resolved) {
		p.logger.Warn("rejecting symlink outside home", slog.String("resource_id", id))
		return "", p.escapeError(id)
	}

	return resolved, nil
}

// contains reports whether target lies at or below home.
func (p *Provider) contains(target string) bool {
	rel, err := filepath.Rel(p.home, target)

	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (p *Provider) escapeError(id string) error {
	return &provider.ProtocolError{
		Provider:   p.key,
		ResourceID: id,
		Message:    "path escapes home directory",
		Err:        provider.ErrNotFound,
	}
}

func (p *Provider) fsError(id string, err error) error {
	protoErr := &provider.ProtocolError{Provider: p.key, ResourceID: id, Err: err}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		protoErr.Err = provider.ErrNotFound
		protoErr.Message = "no such file or directory"
	case errors.Is(err, fs.ErrPermission):
		protoErr.Err = provider.ErrForbidden
		protoErr.Message = "permission denied"
	}

	return protoErr
}

var _ provider.Provider = (*Provider)(nil)
