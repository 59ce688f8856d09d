package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/flashfs/internal/fileservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *fileservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(AuthMiddleware(authEnabled, token))

	// File content.
	r.Get("/files/*", h.ReadFile)
	r.Put("/files/*", h.SaveFile)
	r.Post("/files/*", h.AppendFile)
	r.Delete("/files/*", h.RemoveFile)

	// Whole-file operations.
	r.Route("/ops", func(r chi.Router) {
		r.Post("/copy", h.Copy)
		r.Post("/move", h.Move)
		r.Post("/truncate", h.Truncate)
		r.Post("/touch", h.Touch)
	})

	// Directories.
	r.Post("/dirs/*", h.Mkdir)
	r.Delete("/dirs/*", h.Rmdir)
	r.Get("/ls", h.List)
	r.Get("/ls/*", h.List)
	r.Get("/tree", h.Tree)

	// Volume.
	r.Get("/space", h.Space)
	r.Get("/verify", h.Verify)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
