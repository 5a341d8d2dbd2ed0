package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change kinds reported by Watch.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeCallback is called for every key whose blob changed on disk.
type ChangeCallback func(kind string, key string)

// Watch starts an fsnotify watcher on the FS store directory and reports
// blob changes until ctx is cancelled. Writes made through this process are
// reported too; consumers treat every event as "reload this key".
//
// Rename events trigger a reconciliation pass that compares the known keys
// with the directory contents, so files moved in or out are reported.
func Watch(ctx context.Context, store *FS, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(store.Root()); err != nil {
		return err
	}

	// file name -> key, needed because removed files cannot be read back.
	known := make(map[string]string)
	if keys, err := store.ListKeys(); err == nil {
		for _, k := range keys {
			known[FileName(k)] = k
		}
	}

	logger.Info("watcher: started", slog.String("root", store.Root()))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	emit := func(kind, key string) {
		logger.Debug("watcher: change", slog.String("key", key), slog.String("op", kind))
		if cb != nil {
			cb(kind, key)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(store, known, logger, emit)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			name := filepath.Base(ev.Name)
			if !isBlobName(name) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				key, readErr := KeyOf(ev.Name)
				if readErr != nil {
					// Partially written or foreign file; a later event will follow.
					logger.Debug("watcher: unreadable blob", slog.String("file", name), slog.String("error", readErr.Error()))
					continue
				}
				kind := ChangeUpdated
				if _, seen := known[name]; !seen {
					kind = ChangeCreated
				}
				known[name] = key
				emit(kind, key)

			case ev.Op&fsnotify.Remove != 0:
				if key, seen := known[name]; seen {
					delete(known, name)
					emit(ChangeDeleted, key)
				}

			case ev.Op&fsnotify.Rename != 0:
				if key, seen := known[name]; seen {
					delete(known, name)
					emit(ChangeDeleted, key)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile reports keys that appeared or vanished without a direct event.
func reconcile(store *FS, known map[string]string, logger *slog.Logger, emit func(kind, key string)) {
	keys, err := store.ListKeys()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(keys))
	for _, k := range keys {
		disk[FileName(k)] = k
	}

	for name, key := range known {
		if _, ok := disk[name]; !ok {
			if _, statErr := os.Stat(filepath.Join(store.Root(), name)); statErr == nil {
				continue
			}
			delete(known, name)
			emit(ChangeDeleted, key)
		}
	}
	for name, key := range disk {
		if _, ok := known[name]; !ok {
			known[name] = key
			emit(ChangeCreated, key)
		}
	}
}
