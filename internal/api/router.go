package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts every API route on a chi router. sseHandler, if non-nil,
// serves GET /events behind the same auth as the rest.
func NewRouter(svc Services, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Per-page notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.SaveNote)
	r.Delete("/notes", h.ClearNotes)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Get("/stats", h.Stats)
	r.Get("/export", h.Export)
	r.Get("/normalize", h.Normalize)

	// Cross-page views.
	r.Get("/collections", h.Collections)
	r.Get("/domains", h.Domains)
	r.Get("/views/{mode}", h.View)

	if svc.Autosave != nil {
		r.Route("/autosave", func(r chi.Router) {
			r.Post("/activate", h.Activate)
			r.Post("/notify", h.Notify)
			r.Post("/save", h.SaveNow)
		})
	}

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
