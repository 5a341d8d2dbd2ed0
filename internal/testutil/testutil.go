// Package testutil provides shared test helpers for stores, clocks and logging.
package testutil

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/pagenotes/internal/storage"
)

// TestSQLite creates a temporary SQLite store that is automatically cleaned up.
func TestSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "pagenotes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := storage.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFS creates a temporary data directory with a file-system store.
func TestFS(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to the given epoch milliseconds.
func NewClock(ms int64) *Clock {
	return &Clock{now: time.UnixMilli(ms)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to the given epoch milliseconds.
func (c *Clock) Set(ms int64) {
	c.mu.Lock()
	c.now = time.UnixMilli(ms)
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ErrInjected is returned by FailingKV for every failing operation.
var ErrInjected = errors.New("injected storage failure")

// FailingKV wraps a store and fails the selected operations.
type FailingKV struct {
	storage.KeyValueStore
	FailGet    bool
	FailSet    bool
	FailDelete bool
	FailList   bool
}

// Get fails when FailGet is set.
func (f *FailingKV) Get(key, def string) (string, error) {
	if f.FailGet {
		return "", ErrInjected
	}
	return f.KeyValueStore.Get(key, def)
}

// Set fails when FailSet is set.
func (f *FailingKV) Set(key, value string) error {
	if f.FailSet {
		return ErrInjected
	}
	return f.KeyValueStore.Set(key, value)
}

// Delete fails when FailDelete is set.
func (f *FailingKV) Delete(key string) error {
	if f.FailDelete {
		return ErrInjected
	}
	return f.KeyValueStore.Delete(key)
}

// ListKeys fails when FailList is set.
func (f *FailingKV) ListKeys() ([]string, error) {
	if f.FailList {
		return nil, ErrInjected
	}
	return f.KeyValueStore.ListKeys()
}
