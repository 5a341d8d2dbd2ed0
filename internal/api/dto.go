package api

import "github.com/starford/pagenotes/internal/models"

// SaveNoteRequest is the body of POST /notes. A missing id creates a note.
type SaveNoteRequest struct {
	URL     string `json:"url" example:"https://example.com/article" validate:"required"`
	ID      string `json:"id,omitempty" example:"2f1c0a8e-5b1e-4d35-9d7e-1f0c1b2a3c4d"`
	Content string `json:"content" example:"Remember to cite this" validate:"required"`
}

// NoteListResponse is returned by GET /notes.
type NoteListResponse struct {
	URL   string              `json:"url" example:"https://example.com/article" validate:"required"`
	Notes []models.NoteRecord `json:"notes" validate:"required"`
}

// ClearResponse is returned by DELETE /notes.
type ClearResponse struct {
	Removed int `json:"removed" example:"3"`
}

// NormalizeResponse is returned by GET /normalize.
type NormalizeResponse struct {
	URL        string `json:"url" example:"https://Example.com/a?b=1#top"`
	Normalized string `json:"normalized" example:"https://example.com/a"`
	Domain     string `json:"domain" example:"example.com"`
}

// CollectionsResponse is returned by GET /collections.
type CollectionsResponse struct {
	Collections []models.CollectionSummary `json:"collections" validate:"required"`
}

// DomainsResponse is returned by GET /domains.
type DomainsResponse struct {
	Domains []models.DomainSummary `json:"domains" validate:"required"`
}

// ViewResponse is returned by GET /views/{mode}.
type ViewResponse struct {
	Mode  string                 `json:"mode" example:"domain"`
	Notes []models.AnnotatedNote `json:"notes" validate:"required"`
}

// ActivateRequest is the body of POST /autosave/activate.
type ActivateRequest struct {
	URL string `json:"url" validate:"required"`
	ID  string `json:"id" validate:"required"`
}

// EditRequest is the body of POST /autosave/notify and /autosave/save.
type EditRequest struct {
	ID      string `json:"id" validate:"required"`
	Content string `json:"content"`
}

// NotifyResponse reports whether a deferred save was scheduled.
type NotifyResponse struct {
	Scheduled bool `json:"scheduled"`
}
