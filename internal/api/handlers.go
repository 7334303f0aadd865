package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/echochamber/internal/apperr"
	"github.com/starford/echochamber/internal/models"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/storage"
	"github.com/starford/echochamber/internal/timeline"
)

// Feed is the timeline as seen by the handlers.
type Feed interface {
	View() timeline.View
	RenderFull(ctx context.Context) error
	ToggleLike(path string) (bool, error)
}

// Poster creates posts.
type Poster interface {
	Submit(ctx context.Context, text string) (string, error)
}

// SettingsStore reads and edits settings.
type SettingsStore interface {
	Get() settings.Settings
	Set(field, value string) error
}

// Handler holds API and page handlers.
type Handler struct {
	feed     Feed
	poster   Poster
	settings SettingsStore
	store    storage.Provider
	pages    *Pages
}

// NewHandler creates a new Handler.
func NewHandler(feed Feed, poster Poster, cfg SettingsStore, store storage.Provider, pages *Pages) *Handler {
	return &Handler{feed: feed, poster: poster, settings: cfg, store: store, pages: pages}
}

// postPath extracts the document path from the wildcard part of the URL.
// Encoded slashes (posts%2Fa.md) are accepted.
func postPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// FeedPage handles GET /.
func (h *Handler) FeedPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages.feed(w, feedPage{View: h.feed.View()}); err != nil {
		slog.Error("api: feed page failed", slog.String("error", err.Error()))
	}
}

// SettingsPage handles GET /settings.
func (h *Handler) SettingsPage(w http.ResponseWriter, _ *http.Request) {
	current := h.settings.Get()
	var fields []settingsField
	for _, f := range settings.Panel() {
		fields = append(fields, settingsField{Field: f, Value: current.Value(f.Key)})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages.settings(w, settingsPage{Fields: fields}); err != nil {
		slog.Error("api: settings page failed", slog.String("error", err.Error()))
	}
}

// Timeline handles GET /api/timeline.
func (h *Handler) Timeline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.View())
}

// CreatePost handles POST /api/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	path, err := h.poster.Submit(r.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrEmptyPost):
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("a post with this name already exists"))
		case errors.Is(err, apperr.ErrNotFolder):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("posts folder path is a file"))
		default:
			slog.Error("api: create post failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// OpenPost handles GET /api/posts/*. It serves the raw document.
func (h *Handler) OpenPost(w http.ResponseWriter, r *http.Request) {
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	info, err := h.store.Stat(path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
		return
	}
	if info.Kind != models.KindFile {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	data, err := h.store.Read(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("api: open post failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ToggleLike handles POST /api/likes/*.
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	liked, err := h.feed.ToggleLike(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("post is not on the timeline"))
			return
		}
		slog.Error("api: toggle like failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "liked": liked})
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// UpdateSetting handles PUT /api/settings/{field}. A changed posts folder
// re-renders the timeline.
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	field := chi.URLParam(r, "field")
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	before := h.settings.Get().PostsFolder
	if err := h.settings.Set(field, req.Value); err != nil {
		if errors.Is(err, apperr.ErrUnknownField) {
			writeJSON(w, http.StatusNotFound, errorBody("unknown setting"))
			return
		}
		slog.Error("api: save setting failed", slog.String("field", field), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	after := h.settings.Get()
	if field == settings.FieldPostsFolder && after.PostsFolder != before {
		// Render failures are already reported to the page as a notice.
		_ = h.feed.RenderFull(r.Context())
	}
	writeJSON(w, http.StatusOK, after)
}
