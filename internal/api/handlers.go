package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/pagenotes/internal/apperr"
	"github.com/starford/pagenotes/internal/models"
	"github.com/starford/pagenotes/internal/urlnorm"
)

// Handler holds API route handlers.
type Handler struct {
	svc Services
}

// NewHandler creates a new Handler.
func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

// pageURL returns the required ?url= parameter, writing 400 when it is absent.
func pageURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := strings.TrimSpace(r.URL.Query().Get("url"))
	if u == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'url' is required"))
		return "", false
	}
	return u, true
}

// writeError maps service errors to statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List the notes of one page
//	@Tags			notes
//	@Produce		json
//	@Param			url	query		string	true	"Page URL"
//	@Success		200	{object}	NoteListResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	u, ok := pageURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{
		URL:   h.svc.Notes.Normalize(u),
		Notes: h.svc.Notes.Load(r.Context(), u),
	})
}

// SaveNote handles POST /api/notes.
//
//	@Summary		Create or update a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveNoteRequest	true	"Note to save"
//	@Success		200		{object}	models.NoteRecord
//	@Success		201		{object}	models.NoteRecord
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	var req SaveNoteRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url and content are required"))
		return
	}

	status := http.StatusOK
	if req.ID == "" {
		req.ID = models.NewID()
		status = http.StatusCreated
	}
	note, err := h.svc.Notes.Save(r.Context(), req.URL, req.ID, req.Content)
	if err != nil {
		writeError(w, "save note", err)
		return
	}
	writeJSON(w, status, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete one note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Param			url	query	string	true	"Page URL"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	u, ok := pageURL(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	removed, err := h.svc.Notes.Delete(r.Context(), u, id)
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearNotes handles DELETE /api/notes.
//
//	@Summary		Delete every note of a page
//	@Tags			notes
//	@Produce		json
//	@Param			url	query		string	true	"Page URL"
//	@Success		200	{object}	ClearResponse
//	@Security		BearerAuth
//	@Router			/notes [delete]
func (h *Handler) ClearNotes(w http.ResponseWriter, r *http.Request) {
	u, ok := pageURL(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Notes.Clear(r.Context(), u)
	if err != nil {
		writeError(w, "clear notes", err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Removed: n})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	u, ok := pageURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Notes.Stats(r.Context(), u))
}

// Export handles GET /api/export. The document is sent as a download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	u, ok := pageURL(w, r)
	if !ok {
		return
	}
	doc := h.svc.Notes.Export(r.Context(), u)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="pagenotes-%s.json"`, urlnorm.Domain(u)))
	writeJSON(w, http.StatusOK, doc)
}

// Normalize handles GET /api/normalize.
func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	u, ok := pageURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NormalizeResponse{
		URL:        u,
		Normalized: h.svc.Notes.Normalize(u),
		Domain:     urlnorm.Domain(u),
	})
}

// Collections handles GET /api/collections, optionally filtered by ?domain=.
//
//	@Summary		List page collections, most recent first
//	@Tags			views
//	@Produce		json
//	@Param			domain	query		string	false	"Host filter"
//	@Success		200		{object}	CollectionsResponse
//	@Security		BearerAuth
//	@Router			/collections [get]
func (h *Handler) Collections(w http.ResponseWriter, r *http.Request) {
	var colls []models.CollectionSummary
	if d := r.URL.Query().Get("domain"); d != "" {
		colls = h.svc.Query.CollectionsByDomain(r.Context(), d)
	} else {
		colls = h.svc.Query.AllCollections(r.Context())
	}
	writeJSON(w, http.StatusOK, CollectionsResponse{Collections: colls})
}

// Domains handles GET /api/domains.
func (h *Handler) Domains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DomainsResponse{Domains: h.svc.Query.Domains(r.Context())})
}

// View handles GET /api/views/{mode}. url and domain modes need ?url=.
//
//	@Summary		Flattened note view
//	@Tags			views
//	@Produce		json
//	@Param			mode	path		string	true	"View mode"	Enums(url, domain, all)
//	@Param			url		query		string	false	"Current page URL"
//	@Success		200		{object}	ViewResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/{mode} [get]
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	u := r.URL.Query().Get("url")
	if mode != "all" && u == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'url' is required"))
		return
	}
	notes, err := h.svc.Query.View(r.Context(), mode, u)
	if err != nil {
		writeError(w, "view", err)
		return
	}
	writeJSON(w, http.StatusOK, ViewResponse{Mode: mode, Notes: notes})
}

// Activate handles POST /api/autosave/activate.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.URL == "" || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url and id are required"))
		return
	}
	h.svc.Autosave.Activate(req.URL, req.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Notify handles POST /api/autosave/notify.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	tok := h.svc.Autosave.Notify(req.ID, req.Content)
	writeJSON(w, http.StatusAccepted, NotifyResponse{Scheduled: tok.Valid()})
}

// SaveNow handles POST /api/autosave/save.
func (h *Handler) SaveNow(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.svc.Autosave.SaveNow(r.Context(), req.ID, req.Content)
	if err != nil {
		writeError(w, "autosave", err)
		return
	}
	if note == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, note)
}
