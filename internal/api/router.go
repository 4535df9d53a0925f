package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/hibi/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ih := NewImageHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Ingest and rollup triggers.
	r.Post("/messages", h.AppendMessage)
	r.Post("/rollups", h.Rollup)

	// Notes.
	r.Get("/notes/daily/{date}", h.GetDailyNote)
	r.Get("/notes/topics/{tag}", h.GetTopicNote)
	r.Get("/search", h.Search)
	r.Get("/backlinks", h.Backlinks)
	r.Get("/tags", h.Tags)
	r.Get("/tags/{tag}/notes", h.NotesByTag)

	// Topic selection.
	r.Post("/selections", h.StartSelection)
	r.Get("/selections/{id}", h.GetSelection)
	r.Post("/selections/{id}/choices", h.Choose)
	r.Post("/selections/{id}/append-summary", h.AppendSummary)

	// Stored images (attachments and link thumbnails).
	r.Get("/images/{name}", ih.ServeImage)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
