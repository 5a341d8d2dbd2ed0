// Package autosave coalesces bursts of edits into a single delayed save.
//
// Every Notify starts a new generation and returns a Token for it. Switching
// notes, Deactivate, SaveNow and Close bump the generation too, as does any
// save or delete of the active note made directly against the store, so a
// deferred save whose token is no longer current drops its content instead of
// writing.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/pagenotes/internal/apperr"
	"github.com/starford/pagenotes/internal/models"
)

// DefaultDelay is the quiet window after the last edit.
const DefaultDelay = 1000 * time.Millisecond

// ErrNoSession is returned by SaveNow when the note is not being edited.
var ErrNoSession = fmt.Errorf("%w: no active note", apperr.ErrInvalidInput)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("autosave: scheduler closed")

// Saver persists note content. *notestore.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, url, id, content string) (*models.NoteRecord, error)
	// SaveIf writes only when cond, evaluated under the saver's lock,
	// reports true, and returns nil, nil otherwise.
	SaveIf(ctx context.Context, url, id, content string, cond func() bool) (*models.NoteRecord, error)
	Normalize(url string) string
}

// ownSave marks the context of saves issued by a Scheduler.
type ownSave struct{}

// Token identifies one scheduled save.
type Token struct {
	s   *Scheduler
	gen uint64
}

// Valid reports whether the save is still the current one.
func (t Token) Valid() bool {
	if t.s == nil || t.gen == 0 {
		return false
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return !t.s.closed && t.s.gen == t.gen
}

// Scheduler debounces saves for the note being edited.
type Scheduler struct {
	saver   Saver
	delay   time.Duration
	logger  *slog.Logger
	onSaved func(url string, note *models.NoteRecord)

	mu     sync.Mutex
	url    string
	id     string
	active bool
	gen    uint64
	timer  *time.Timer
	closed bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDelay overrides DefaultDelay. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithOnSaved registers a callback run after each deferred save.
func WithOnSaved(fn func(url string, note *models.NoteRecord)) Option {
	return func(s *Scheduler) { s.onSaved = fn }
}

// New creates a Scheduler that writes through saver.
func New(saver Saver, opts ...Option) *Scheduler {
	s := &Scheduler{
		saver:  saver,
		delay:  DefaultDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay returns the quiet window.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Activate makes id on url the note being edited. Switching to another note
// drops any pending save; re-activating the current one keeps it.
func (s *Scheduler) Activate(url, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && s.id == id && s.saver.Normalize(s.url) == s.saver.Normalize(url) {
		return
	}
	s.cancelLocked()
	s.url, s.id, s.active = url, id, true
}

// Deactivate ends the editing session. Any pending save is dropped.
func (s *Scheduler) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.url, s.id, s.active = "", "", false
}

// Active returns the page and note being edited.
func (s *Scheduler) Active() (url, id string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, s.id, s.active
}

// Notify records an edit of id and (re)starts the quiet window. Blank content,
// a closed scheduler or an inactive id yield an invalid Token.
func (s *Scheduler) Notify(id, content string) Token {
	if strings.TrimSpace(content) == "" {
		return Token{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.active || id != s.id {
		return Token{}
	}
	s.cancelLocked()

	gen := s.gen
	url := s.url
	s.timer = time.AfterFunc(s.delay, func() {
		s.fire(gen, url, id, content)
	})
	return Token{s: s, gen: gen}
}

// SaveNow saves immediately and drops any pending save. Blank content is a
// no-op returning nil, nil.
func (s *Scheduler) SaveNow(ctx context.Context, id, content string) (*models.NoteRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if !s.active || id != s.id {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	s.cancelLocked()
	url := s.url
	s.mu.Unlock()

	return s.saver.Save(s.own(ctx), url, id, content)
}

// Invalidate drops the pending save when id on url is the note being edited.
// url may be raw or normalized.
func (s *Scheduler) Invalidate(url, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.id != id || s.saver.Normalize(s.url) != s.saver.Normalize(url) {
		return
	}
	s.cancelLocked()
}

// NoteChanged implements notestore.Notifier. Mutations issued by the
// scheduler itself are ignored.
func (s *Scheduler) NoteChanged(ctx context.Context, _, url, id string) {
	if owner, _ := ctx.Value(ownSave{}).(*Scheduler); owner == s {
		return
	}
	s.Invalidate(url, id)
}

func (s *Scheduler) own(ctx context.Context) context.Context {
	return context.WithValue(ctx, ownSave{}, s)
}

// current reports whether gen is still the live generation.
func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.gen == gen
}

// Pending reports whether a deferred save is waiting to fire.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Close drops any pending save. Later calls are no-ops.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.closed = true
}

// cancelLocked stops the timer and invalidates every outstanding token.
func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// fire writes a deferred save. The generation is checked again inside the
// saver's lock, so a manual save or delete that lands first wins.
func (s *Scheduler) fire(gen uint64, url, id, content string) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	note, err := s.saver.SaveIf(s.own(context.Background()), url, id, content, func() bool {
		return s.current(gen)
	})
	if err != nil {
		s.logger.Error("autosave: deferred save failed",
			slog.String("url", url), slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	if note == nil {
		s.logger.Debug("autosave: superseded", slog.String("url", url), slog.String("id", id))
		return
	}
	s.logger.Debug("autosave: saved", slog.String("url", url), slog.String("id", id))
	if s.onSaved != nil {
		s.onSaved(url, note)
	}
}
