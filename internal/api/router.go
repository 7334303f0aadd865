package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/timeline", h.Timeline)

	r.Post("/posts", h.CreatePost)
	r.Get("/posts/*", h.OpenPost)
	r.Post("/likes/*", h.ToggleLike)

	r.Get("/settings", h.GetSettings)
	r.Put("/settings/{field}", h.UpdateSetting)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// MountPages adds the HTML pages to r behind the same auth as the API.
// Browsers pass the token as ?token=.
func MountPages(r chi.Router, h *Handler, authEnabled bool, token string) {
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))
		r.Get("/", h.FeedPage)
		r.Get("/settings", h.SettingsPage)
	})
}
