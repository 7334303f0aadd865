// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/starford/echochamber/internal/api"
	"github.com/starford/echochamber/internal/composer"
	"github.com/starford/echochamber/internal/index"
	"github.com/starford/echochamber/internal/mcpserver"
	"github.com/starford/echochamber/internal/render"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/sse"
	"github.com/starford/echochamber/internal/storage"
	"github.com/starford/echochamber/internal/timeline"
)

// runtime holds the components shared by the HTTP and MCP entry points.
type runtime struct {
	cfg      *Config
	logger   *slog.Logger
	store    *storage.FS
	settings *settings.Store
}

func newRuntime(opts []Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("settings_path", cfg.Settings.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	cfgStore, err := settings.Open(afero.NewOsFs(), cfg.Settings.Path)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, store: store, settings: cfgStore}, nil
}

// openIndex opens the header cache and brings it up to date with the vault.
func (rt *runtime) openIndex() (*index.DB, error) {
	db, err := index.Open(rt.cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, rt.store, rt.logger); err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return db, nil
}

// timeline builds the feed. cache may be nil when no watcher keeps it fresh.
func (rt *runtime) timeline(cache index.HeaderCache, sink timeline.Sink) *timeline.Timeline {
	return timeline.New(rt.settings, rt.store, cache, render.NewMarkdown(),
		timeline.WithSink(sink),
		timeline.WithLogger(rt.logger))
}

func (rt *runtime) composer(tl *timeline.Timeline) *composer.Composer {
	return composer.New(rt.settings, rt.store, tl,
		composer.WithHeader(rt.cfg.Composer.Header),
		composer.WithLogger(rt.logger))
}

// Run starts the feed server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}

	db, err := rt.openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := rt.cfg
	logger := rt.logger

	// SSE broker.
	broker := sse.NewBroker(15 * time.Second)
	defer broker.Close()

	pageToken := ""
	if cfg.Auth.AuthEnabled() {
		pageToken = cfg.Auth.Token
	}
	pages, err := api.NewPages(pageToken)
	if err != nil {
		return err
	}

	tl := rt.timeline(db, api.NewSink(pages, broker, logger))
	if err := tl.RenderFull(ctx); err != nil {
		logger.Warn("initial render failed", slog.String("error", err.Error()))
	}
	defer tl.Flush()

	handler := api.NewHandler(tl, rt.composer(tl), rt.settings, rt.store, pages)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	api.MountPages(r, handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher feeding the timeline.
	g.Go(func() error {
		err := index.Watch(gCtx, db, rt.store, rt.store.Root(), logger, func(ev index.Event) {
			tl.HandleEvent(gCtx, ev)
		})
		if err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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

		logger.Info("Shutting down server...")

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

// RunMCP serves the feed tools over stdio. Logs go to the configured
// output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}

	logger := rt.logger
	// No watcher runs here to keep the header cache fresh after this
	// process writes, so the index is not opened and headers are read from
	// the files.
	tl := rt.timeline(nil, timeline.SinkFunc(func(p timeline.Patch) {
		if p.Kind == timeline.PatchNotice {
			logger.Warn("timeline: notice", slog.String("message", p.Message))
		}
	}))
	if err := tl.RenderFull(ctx); err != nil {
		logger.Warn("initial render failed", slog.String("error", err.Error()))
	}
	defer tl.Flush()

	srv := mcpserver.New(tl, rt.composer(tl), rt.settings, rt.store)

	logger.Info("MCP server starting on stdio")
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
