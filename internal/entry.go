// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pagenotes/internal/api"
	"github.com/starford/pagenotes/internal/autosave"
	"github.com/starford/pagenotes/internal/mcpserver"
	"github.com/starford/pagenotes/internal/models"
	"github.com/starford/pagenotes/internal/notestore"
	"github.com/starford/pagenotes/internal/query"
	"github.com/starford/pagenotes/internal/sse"
	"github.com/starford/pagenotes/internal/storage"
)

// core is the storage stack shared by every entry point.
type core struct {
	kv     storage.KeyValueStore
	fs     *storage.FS // set for the fs backend only
	store  *notestore.Store
	engine *query.Engine
	close  func() error
}

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// openStorage creates the configured key-value backend.
func openStorage(cfg StorageConfig) (storage.KeyValueStore, *storage.FS, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case BackendMemory:
		return storage.NewMemory(), nil, noop, nil
	case BackendFS:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return fs, fs, noop, nil
	case BackendSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		db, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, nil, db.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func openCore(cfg *Config, logger *slog.Logger, notifier notestore.Notifier) (*core, error) {
	norm, err := cfg.Normalizer()
	if err != nil {
		return nil, fmt.Errorf("init url rules: %w", err)
	}
	kv, fs, closeFn, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	opts := []notestore.Option{
		notestore.WithKeyPrefix(cfg.Notes.KeyPrefix),
		notestore.WithMaxTitleLength(cfg.Notes.MaxTitleLength),
		notestore.WithLogger(logger),
	}
	if notifier != nil {
		opts = append(opts, notestore.WithNotifier(notifier))
	}
	store := notestore.New(kv, norm, opts...)

	return &core{
		kv:     kv,
		fs:     fs,
		store:  store,
		engine: query.NewEngine(kv, store, store.Prefix(), logger),
		close:  closeFn,
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("storage_path", cfg.Storage.Path),
		slog.Duration("autosave_delay", cfg.Autosave.Delay),
		slog.Int("url_rules", len(cfg.URLRules)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(sse.DefaultThrottle)
	defer broker.Close()

	c, err := openCore(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.close(); err != nil {
			logger.Error("storage close failed", slog.String("error", err.Error()))
		}
	}()

	sched := autosave.New(c.store,
		autosave.WithDelay(cfg.Autosave.Delay),
		autosave.WithLogger(logger),
		autosave.WithOnSaved(func(url string, note *models.NoteRecord) {
			logger.Info("autosaved", slog.String("url", url), slog.String("id", note.ID))
		}),
	)
	defer sched.Close()
	// Manual saves and deletes made through the API must win over pending drafts.
	c.store.AddNotifier(sched)

	apiRouter := api.NewRouter(api.Services{
		Notes:    c.store,
		Query:    c.engine,
		Autosave: sched,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.kv.ListKeys(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"storage unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Report blobs changed by other processes sharing the data directory.
	if c.fs != nil {
		g.Go(func() error {
			if err := storage.Watch(gCtx, c.fs, logger, broker.StorageChanged); err != nil {
				logger.Warn("storage watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		// Drop unsaved drafts before the store goes away.
		sched.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// stdout carries the protocol.
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	c, err := openCore(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	srv := mcpserver.New(c.store, c.engine, mcpserver.WithPreviewLength(cfg.Notes.PreviewLength))
	logger.Info("MCP server listening on stdio", slog.String("storage_backend", cfg.Storage.Backend))
	return srv.ServeStdio()
}

// Export writes the export document of url as indented JSON.
func Export(ctx context.Context, url string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: app.config.App.LogLevel}))
	}

	c, err := openCore(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	return enc.Encode(c.store.Export(ctx, url))
}

// Normalize writes the storage key url maps to under the configured rules.
func Normalize(url string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	norm, err := app.config.Normalizer()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(app.out, norm.Normalize(url))
	return err
}
