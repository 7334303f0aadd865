package timeline

import (
	"context"
	"html/template"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starford/echochamber/internal/header"
	"github.com/starford/echochamber/internal/models"
)

// Fallbacks shown when a post lacks header fields or fails to render.
const (
	UnknownDisplayName = "Unknown"
	UnknownUsername    = "unknown"
	RenderPlaceholder  = "Failed to render post."
)

// buildEntry reads one document and assembles its entry. The cached header
// wins over the raw one; a cache miss just means the indexer has not caught
// up yet. A like that is still being saved wins over both.
func (t *Timeline) buildEntry(ctx context.Context, path string, modTime time.Time) (*Entry, error) {
	content, err := t.store.Read(path)
	if err != nil {
		return nil, err
	}

	h, body, _ := header.Parse(content)
	if cached, ok := t.cachedHeader(path); ok {
		h = cached
	}

	e := &Entry{Path: path}
	t.fill(ctx, e, h, body, modTime)
	if intent, ok := t.likes[path]; ok {
		e.Liked = intent.want
	}
	return e, nil
}

func (t *Timeline) cachedHeader(path string) (models.Header, bool) {
	if t.cache == nil {
		return models.Header{}, false
	}
	h, ok, err := t.cache.Header(path)
	if err != nil {
		t.logger.Warn("timeline: header cache lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		return models.Header{}, false
	}
	return h, ok
}

// fill sets every field derived from content on e.
func (t *Timeline) fill(ctx context.Context, e *Entry, h models.Header, body []byte, modTime time.Time) {
	e.DisplayName = h.AuthorDisplayName
	if e.DisplayName == "" {
		e.DisplayName = UnknownDisplayName
	}
	e.Username = h.AuthorUsername
	if e.Username == "" {
		e.Username = UnknownUsername
	}
	e.ModTime = modTime
	e.Posted = humanize.RelTime(modTime, t.now(), "ago", "from now")
	e.Liked = h.Liked

	html, err := t.renderer.Render(ctx, body)
	if err != nil {
		t.logger.Warn("timeline: render body failed", slog.String("path", e.Path), slog.String("error", err.Error()))
		html = template.HTML(template.HTMLEscapeString(RenderPlaceholder)) //nolint:gosec // escaped constant
	}
	e.Body = html
}
