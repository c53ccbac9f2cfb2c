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

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/capture"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/refstore"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
)

// playerTick is how often the player transport advances its clock.
const playerTick = 200 * time.Millisecond

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
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
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("recordings_dir", cfg.Audio.RecordingsDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault and recordings directories exist.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Audio.RecordingsDir, 0o755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}

	// Initialize snapshot storage.
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize the SQLite reference store.
	db, err := refstore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init reference store: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(cfg.App.TimelineThrottle)
	defer broker.Close()

	// Capture engine and the singleton recording session.
	engine := capture.NewFFmpegEngine(capture.Options{
		Binary: cfg.Audio.Binary,
		Format: cfg.Audio.Format,
		Device: cfg.Audio.Device,
		Dir:    cfg.Audio.RecordingsDir,
	})
	sess := session.NewManager(engine)

	// Document service and segment player.
	svc := noteservice.NewService(store, db, sess, broker, cfg.Vault.Path, cfg.Audio.RecordingsDir)
	pl := player.New()
	defer pl.Close()

	apiRouter := api.NewRouter(svc, pl, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	// Mount API routes under /api. The SSE endpoint lives inside the
	// router so it shares the auth middleware.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// The group context is only cancelled by a goroutine failure; a clean
	// signal shutdown has to cancel the background loops by hand.
	runCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()

	g, gCtx := errgroup.WithContext(runCtx)

	// Start the vault watcher; it is the sole source of doc events.
	g.Go(func() error {
		return svc.Watch(gCtx, logger)
	})

	// Advance the player clock.
	g.Go(func() error {
		pl.Run(gCtx, playerTick)
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Finalize an in-flight recording so the capture is not lost.
		if _, err := svc.StopRecording(shutdownCtx); err != nil && !errors.Is(err, apperr.ErrNotRecording) {
			logger.Error("stop recording on shutdown failed", slog.String("error", err.Error()))
		}

		// Close the broker first so open SSE streams end and the HTTP
		// drain below does not wait out its timeout on them.
		broker.Close()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Kill any capture process the session no longer tracks.
		engine.Shutdown()

		cancelBackground()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio until the client closes the pipe.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Logs go to stderr; stdout belongs to the MCP transport.
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	db, err := refstore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init reference store: %w", err)
	}
	defer db.Close()

	engine := capture.NewFFmpegEngine(capture.Options{
		Binary: cfg.Audio.Binary,
		Format: cfg.Audio.Format,
		Device: cfg.Audio.Device,
		Dir:    cfg.Audio.RecordingsDir,
	})
	sess := session.NewManager(engine)
	svc := noteservice.NewService(store, db, sess, nil, cfg.Vault.Path, cfg.Audio.RecordingsDir)

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}
