// Package notestore implements note CRUD over page collections persisted in a
// key-value store.
package notestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/starford/pagenotes/internal/apperr"
	"github.com/starford/pagenotes/internal/models"
	"github.com/starford/pagenotes/internal/storage"
	"github.com/starford/pagenotes/internal/urlnorm"
)

// DefaultKeyPrefix namespaces collection keys inside the key-value store.
const DefaultKeyPrefix = "notes_"

// Change kinds passed to a Notifier.
const (
	ChangeSaved   = "saved"
	ChangeDeleted = "deleted"
)

// Notifier is told about every successful mutation. It runs while the store
// lock is held and must not call back into the Store. url is normalized and
// ctx is the one passed to the mutating call.
type Notifier interface {
	NoteChanged(ctx context.Context, kind, url, id string)
}

// Store maps page URLs to note collections.
type Store struct {
	kv       storage.KeyValueStore
	norm     *urlnorm.Normalizer
	prefix   string
	maxTitle int
	now      func() time.Time
	logger    *slog.Logger
	notifiers []Notifier

	// mu serializes read-modify-write cycles on collections.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithMaxTitleLength overrides models.DefaultMaxTitleLength.
func WithMaxTitleLength(n int) Option {
	return func(s *Store) { s.maxTitle = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for recovered failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithNotifier registers a change listener. It may be given more than once.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifiers = append(s.notifiers, n) }
}

// AddNotifier registers a change listener after construction.
func (s *Store) AddNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// New creates a Store over kv. A nil normalizer uses urlnorm.Default.
func New(kv storage.KeyValueStore, norm *urlnorm.Normalizer, opts ...Option) *Store {
	if norm == nil {
		norm = urlnorm.Default()
	}
	s := &Store{
		kv:       kv,
		norm:     norm,
		prefix:   DefaultKeyPrefix,
		maxTitle: models.DefaultMaxTitleLength,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefix returns the key prefix of every collection.
func (s *Store) Prefix() string {
	return s.prefix
}

// Normalize returns the canonical form of a page URL.
func (s *Store) Normalize(url string) string {
	return s.norm.Normalize(url)
}

// Key returns the storage key of the collection for url.
func (s *Store) Key(url string) string {
	return s.prefix + s.norm.Normalize(url)
}

// Save creates or replaces the note id on the page. Content is trimmed but
// not checked for emptiness; callers skip blank saves.
func (s *Store) Save(ctx context.Context, url, id, content string) (*models.NoteRecord, error) {
	return s.SaveIf(ctx, url, id, content, nil)
}

// SaveIf is Save guarded by cond, which is evaluated under the store lock.
// When cond reports false nothing is written and SaveIf returns nil, nil.
func (s *Store) SaveIf(ctx context.Context, url, id, content string, cond func() bool) (*models.NoteRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: note id is required", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cond != nil && !cond() {
		return nil, nil
	}

	key := s.Key(url)
	coll, err := s.readCollection(key)
	switch {
	case IsMalformed(err):
		// A corrupt blob must not block new notes for the page.
		s.logger.Warn("notestore: discarding unreadable collection",
			slog.String("key", key), slog.String("error", err.Error()))
		coll = nil
	case err != nil:
		s.logger.Error("notestore: save failed",
			slog.String("key", key), slog.String("id", id), slog.String("error", err.Error()))
		return nil, err
	}
	if coll == nil {
		coll = &models.NoteCollection{Notes: []models.NoteRecord{}}
	}

	now := s.now().UnixMilli()
	trimmed := strings.TrimSpace(content)
	note := models.NoteRecord{
		ID:      id,
		Content: trimmed,
		Title:   models.DeriveTitle(trimmed, s.maxTitle),
		Created: now,
		Updated: now,
	}

	if i := coll.Index(id); i >= 0 {
		note.Created = coll.Notes[i].Created
		note.Updated = max(now, note.Created)
		coll.Notes[i] = note
	} else {
		coll.Notes = append(coll.Notes, note)
	}
	coll.URL = s.norm.Normalize(url)
	coll.Updated = coll.LatestUpdate()

	if err := s.writeCollection(key, coll); err != nil {
		s.logger.Error("notestore: save failed",
			slog.String("key", key), slog.String("id", id), slog.String("error", err.Error()))
		return nil, err
	}
	s.notify(ctx, ChangeSaved, coll.URL, id)
	return &note, nil
}

// Load returns the page's notes in insertion order. A missing or unreadable
// collection yields an empty slice.
func (s *Store) Load(_ context.Context, url string) []models.NoteRecord {
	key := s.Key(url)
	coll, err := s.readCollection(key)
	if err != nil {
		s.logger.Warn("notestore: load failed", slog.String("key", key), slog.String("error", err.Error()))
		return []models.NoteRecord{}
	}
	if coll == nil {
		return []models.NoteRecord{}
	}
	return coll.Notes
}

// Delete removes the note id from the page and reports whether it existed.
// Removing the last note deletes the collection key. An unreadable collection
// holds no notes, so deleting from it removes nothing.
func (s *Store) Delete(ctx context.Context, url, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.Key(url)
	coll, err := s.readCollection(key)
	switch {
	case IsMalformed(err):
		s.logger.Warn("notestore: delete on unreadable collection",
			slog.String("key", key), slog.String("id", id), slog.String("error", err.Error()))
		return false, nil
	case err != nil:
		s.logger.Error("notestore: delete failed",
			slog.String("key", key), slog.String("id", id), slog.String("error", err.Error()))
		return false, err
	}
	if coll == nil {
		return false, nil
	}
	i := coll.Index(id)
	if i < 0 {
		return false, nil
	}
	coll.Notes = append(coll.Notes[:i], coll.Notes[i+1:]...)

	if len(coll.Notes) == 0 {
		err = s.removeCollection(key)
	} else {
		coll.Updated = coll.LatestUpdate()
		err = s.writeCollection(key, coll)
	}
	if err != nil {
		s.logger.Error("notestore: delete failed",
			slog.String("key", key), slog.String("id", id), slog.String("error", err.Error()))
		return false, err
	}
	s.notify(ctx, ChangeDeleted, s.norm.Normalize(url), id)
	return true, nil
}

// Clear deletes every note of the page and returns how many were removed.
func (s *Store) Clear(ctx context.Context, url string) (int, error) {
	removed := 0
	for _, n := range s.Load(ctx, url) {
		ok, err := s.Delete(ctx, url, n.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Stats summarizes the page's notes. TotalSize counts runes.
func (s *Store) Stats(ctx context.Context, url string) models.Stats {
	var st models.Stats
	for _, n := range s.Load(ctx, url) {
		st.Count++
		st.TotalSize += utf8.RuneCountInString(n.Content)
		st.LastUpdated = max(st.LastUpdated, n.Updated)
	}
	return st
}

// Export returns the page's notes stamped with the current time.
func (s *Store) Export(ctx context.Context, url string) models.Export {
	return models.NewExport(url, s.Load(ctx, url), s.now())
}

// readCollection returns nil, nil when key is absent.
func (s *Store) readCollection(key string) (*models.NoteCollection, error) {
	raw, err := s.kv.Get(key, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	if raw == "" {
		return nil, nil
	}
	return models.DecodeCollection([]byte(raw))
}

func (s *Store) writeCollection(key string, coll *models.NoteCollection) error {
	blob, err := models.EncodeCollection(coll)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	if err := s.kv.Set(key, blob); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	return nil
}

func (s *Store) removeCollection(key string) error {
	if err := s.kv.Delete(key); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	return nil
}

func (s *Store) notify(ctx context.Context, kind, url, id string) {
	for _, n := range s.notifiers {
		n.NoteChanged(ctx, kind, url, id)
	}
}

// IsMalformed reports whether err came from an unreadable stored collection.
func IsMalformed(err error) bool {
	return errors.Is(err, models.ErrMalformed)
}
