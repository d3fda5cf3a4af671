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
	"golang.org/x/sync/errgroup"

	"github.com/starford/geotracker/internal/api"
	"github.com/starford/geotracker/internal/catalog"
	"github.com/starford/geotracker/internal/kvstore"
	"github.com/starford/geotracker/internal/location"
	"github.com/starford/geotracker/internal/mcpserver"
	"github.com/starford/geotracker/internal/settings"
	"github.com/starford/geotracker/internal/share"
	"github.com/starford/geotracker/internal/sse"
	"github.com/starford/geotracker/internal/storage"
	"github.com/starford/geotracker/internal/trackfile"
	"github.com/starford/geotracker/internal/trackservice"
	"github.com/starford/geotracker/internal/watch"
)

// settingsStore is a settings backend that owns resources.
type settingsStore interface {
	settings.Store
	Close() error
}

// stack is the wired domain layer shared by the HTTP and MCP entry points.
type stack struct {
	fs      *storage.FS
	kv      settingsStore
	catalog *catalog.Catalog
	files   *trackfile.Store
	svc     *trackservice.Service
}

func (s *stack) close() {
	_ = s.kv.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// build opens storage and settings, loads the catalog and wires the track
// service. events may be nil.
func (a *application) build(logger *slog.Logger, events trackservice.Publisher) (*stack, error) {
	cfg := a.config

	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	fs, err := storage.NewFS(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	var kv settingsStore
	switch cfg.Settings.Backend {
	case SettingsBackendFile:
		kv, err = kvstore.OpenFile(fs, cfg.Settings.Path)
	default:
		kv, err = kvstore.Open(cfg.Settings.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("init settings: %w", err)
	}

	st := settings.New(kv)
	files := trackfile.New(fs, logger)
	cat := catalog.New(files, st, logger)
	if err := cat.Load(); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	deps := trackservice.Deps{
		Catalog:  cat,
		Files:    files,
		Settings: st,
		Sink:     share.NewLinks(cfg.App.HTTP.BaseURL(), files),
		Events:   events,
		Logger:   logger,
	}
	if cfg.Recorder.ReplayFile != "" {
		replay, err := openReplay(cfg.Recorder.ReplayFile, cfg.Recorder.Loop, logger)
		if err != nil {
			_ = kv.Close()
			return nil, err
		}
		deps.Source = replay
		logger.Info("replaying track file",
			slog.String("file", cfg.Recorder.ReplayFile),
			slog.Int("records", replay.Len()))
	} else {
		feed := location.NewFeed()
		deps.Source = feed
		deps.Feed = feed
	}

	svc, err := trackservice.New(deps)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("init track service: %w", err)
	}

	return &stack{fs: fs, kv: kv, catalog: cat, files: files, svc: svc}, nil
}

func openReplay(path string, loop bool, logger *slog.Logger) (*location.Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()
	replay, err := location.LoadReplay(f, loop, logger)
	if err != nil {
		return nil, fmt.Errorf("load replay file: %w", err)
	}
	return replay, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("settings_backend", cfg.Settings.Backend),
		slog.String("settings_path", cfg.Settings.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(cfg.Recorder.SceneThrottle)
	defer broker.Close()

	st, err := app.build(logger, broker)
	if err != nil {
		return err
	}
	defer st.close()

	if err := st.svc.Start(ctx); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	defer func() {
		if err := st.svc.Stop(context.Background()); err != nil {
			logger.Warn("recorder stop failed", slog.String("error", err.Error()))
		}
	}()

	apiRouter := api.NewRouter(st.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if _, err := st.files.List(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		err := watch.Watch(gCtx, st.fs.Root(), st.files, logger, func(kind, filename string) {
			name := ""
			if d, ok := st.catalog.ByFilename(filename); ok {
				name = d.Name
			}
			broker.PublishTrackEvent(kind, name, filename)
		})
		if err != nil {
			logger.Warn("watcher unavailable", slog.String("error", err.Error()))
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

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	st, err := app.build(logger, nil)
	if err != nil {
		return err
	}
	defer st.close()

	if err := st.svc.Start(ctx); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	defer func() { _ = st.svc.Stop(context.Background()) }()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(st.svc).ServeStdio()
}
