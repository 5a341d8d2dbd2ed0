// Package query provides read-only views that aggregate notes across pages
// and domains.
package query

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/pagenotes/internal/apperr"
	"github.com/starford/pagenotes/internal/models"
	"github.com/starford/pagenotes/internal/storage"
	"github.com/starford/pagenotes/internal/urlnorm"
)

// View modes.
const (
	ModeURL    = "url"
	ModeDomain = "domain"
	ModeAll    = "all"
)

// NoteLoader returns one page's notes in stored order.
type NoteLoader interface {
	Load(ctx context.Context, url string) []models.NoteRecord
}

// Engine scans every stored collection. It never writes.
type Engine struct {
	kv     storage.KeyValueStore
	loader NoteLoader
	prefix string
	logger *slog.Logger
}

// NewEngine creates an Engine over the collections stored under prefix.
// loader serves the single-URL view.
func NewEngine(kv storage.KeyValueStore, loader NoteLoader, prefix string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{kv: kv, loader: loader, prefix: prefix, logger: logger}
}

// AllCollections returns every non-empty, readable collection, most recently
// updated first. Equal timestamps keep key order.
func (e *Engine) AllCollections(_ context.Context) []models.CollectionSummary {
	keys, err := e.kv.ListKeys()
	if err != nil {
		e.logger.Error("query: list keys failed", slog.String("error", err.Error()))
		return []models.CollectionSummary{}
	}

	out := []models.CollectionSummary{}
	for _, key := range keys {
		if !strings.HasPrefix(key, e.prefix) {
			continue
		}
		raw, err := e.kv.Get(key, "")
		if err != nil {
			e.logger.Warn("query: read failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if raw == "" {
			continue
		}
		coll, err := models.DecodeCollection([]byte(raw))
		if err != nil {
			e.logger.Warn("query: skipping unreadable collection", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if len(coll.Notes) == 0 {
			continue
		}
		out = append(out, models.CollectionSummary{
			URL:     coll.URL,
			Domain:  urlnorm.Domain(coll.URL),
			Notes:   coll.Notes,
			Updated: coll.Updated,
		})
	}

	slices.SortStableFunc(out, func(a, b models.CollectionSummary) int {
		return cmp.Compare(b.Updated, a.Updated)
	})
	return out
}

// CollectionsByDomain returns the collections whose URL host equals domain.
func (e *Engine) CollectionsByDomain(ctx context.Context, domain string) []models.CollectionSummary {
	domain = strings.ToLower(domain)
	out := []models.CollectionSummary{}
	for _, c := range e.AllCollections(ctx) {
		if c.Domain == domain {
			out = append(out, c)
		}
	}
	return out
}

// URLView returns the page's notes in their natural order.
func (e *Engine) URLView(ctx context.Context, url string) []models.AnnotatedNote {
	notes := e.loader.Load(ctx, url)
	out := make([]models.AnnotatedNote, len(notes))
	for i, n := range notes {
		out[i] = models.AnnotatedNote{NoteRecord: n}
	}
	return out
}

// DomainView flattens every note under domain, newest first.
func (e *Engine) DomainView(ctx context.Context, domain string) []models.AnnotatedNote {
	return flatten(e.CollectionsByDomain(ctx, domain), false)
}

// GlobalView flattens every stored note, newest first.
func (e *Engine) GlobalView(ctx context.Context) []models.AnnotatedNote {
	return flatten(e.AllCollections(ctx), true)
}

// View dispatches on mode. For ModeDomain the domain is taken from url.
func (e *Engine) View(ctx context.Context, mode, url string) ([]models.AnnotatedNote, error) {
	switch mode {
	case ModeURL, "":
		return e.URLView(ctx, url), nil
	case ModeDomain:
		return e.DomainView(ctx, urlnorm.Domain(url)), nil
	case ModeAll:
		return e.GlobalView(ctx), nil
	default:
		return nil, fmt.Errorf("%w: unknown view mode %q", apperr.ErrInvalidInput, mode)
	}
}

// Domains summarizes stored notes per host, most recently updated first.
func (e *Engine) Domains(ctx context.Context) []models.DomainSummary {
	byDomain := make(map[string]*models.DomainSummary)
	var order []string
	for _, c := range e.AllCollections(ctx) {
		d, ok := byDomain[c.Domain]
		if !ok {
			d = &models.DomainSummary{Domain: c.Domain}
			byDomain[c.Domain] = d
			order = append(order, c.Domain)
		}
		d.Pages++
		d.Notes += len(c.Notes)
		d.Updated = max(d.Updated, c.Updated)
	}

	out := make([]models.DomainSummary, 0, len(order))
	for _, name := range order {
		out = append(out, *byDomain[name])
	}
	slices.SortStableFunc(out, func(a, b models.DomainSummary) int {
		if c := cmp.Compare(b.Updated, a.Updated); c != 0 {
			return c
		}
		return cmp.Compare(a.Domain, b.Domain)
	})
	return out
}

// flatten annotates each note with its page (and domain when withDomain) and
// orders by updated descending, then id.
func flatten(colls []models.CollectionSummary, withDomain bool) []models.AnnotatedNote {
	out := []models.AnnotatedNote{}
	for _, c := range colls {
		for _, n := range c.Notes {
			a := models.AnnotatedNote{NoteRecord: n, SourceURL: c.URL}
			if withDomain {
				a.Domain = c.Domain
			}
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b models.AnnotatedNote) int {
		if c := cmp.Compare(b.Updated, a.Updated); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
