package api

import (
	"context"

	"github.com/starford/pagenotes/internal/autosave"
	"github.com/starford/pagenotes/internal/models"
)

// NoteService is the per-page CRUD surface. *notestore.Store implements it.
type NoteService interface {
	Normalize(url string) string
	Save(ctx context.Context, url, id, content string) (*models.NoteRecord, error)
	Load(ctx context.Context, url string) []models.NoteRecord
	Delete(ctx context.Context, url, id string) (bool, error)
	Clear(ctx context.Context, url string) (int, error)
	Stats(ctx context.Context, url string) models.Stats
	Export(ctx context.Context, url string) models.Export
}

// QueryService is the cross-page read surface. *query.Engine implements it.
type QueryService interface {
	AllCollections(ctx context.Context) []models.CollectionSummary
	CollectionsByDomain(ctx context.Context, domain string) []models.CollectionSummary
	View(ctx context.Context, mode, url string) ([]models.AnnotatedNote, error)
	Domains(ctx context.Context) []models.DomainSummary
}

// AutosaveService debounces editor input. *autosave.Scheduler implements it.
type AutosaveService interface {
	Activate(url, id string)
	Notify(id, content string) autosave.Token
	SaveNow(ctx context.Context, id, content string) (*models.NoteRecord, error)
	Pending() bool
}

// Services bundles the handler dependencies. Autosave may be nil, in which
// case the /autosave routes are not mounted.
type Services struct {
	Notes    NoteService
	Query    QueryService
	Autosave AutosaveService
}
