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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/algerknown/algerknown/internal/api"
	"github.com/algerknown/algerknown/internal/diffengine"
	"github.com/algerknown/algerknown/internal/kbservice"
	"github.com/algerknown/algerknown/internal/llm"
	"github.com/algerknown/algerknown/internal/loader"
	"github.com/algerknown/algerknown/internal/mcpserver"
	"github.com/algerknown/algerknown/internal/propose"
	"github.com/algerknown/algerknown/internal/sse"
	"github.com/algerknown/algerknown/internal/synth"
	"github.com/algerknown/algerknown/internal/vectorindex"
	"github.com/algerknown/algerknown/internal/watcher"
	"github.com/algerknown/algerknown/internal/writer"
)

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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_dir", cfg.Content.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure content directory layout exists.
	for _, sub := range []string{"entries", "summaries"} {
		if err := os.MkdirAll(filepath.Join(cfg.Content.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("create content dir: %w", err)
		}
	}

	svc, store, err := buildService(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Index existing records.
	if _, err := svc.Reindex(ctx); err != nil {
		logger.Warn("initial reindex failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API router.
	apiRouter := api.NewRouter(svc, cfg.App.HTTP.CORSOrigins,
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		contentRoot, absErr := filepath.Abs(cfg.Content.Dir)
		if absErr != nil {
			return fmt.Errorf("resolve content dir: %w", absErr)
		}
		watcher.Watch(gCtx, svc, contentRoot, logger, func(kind, path string) {
			id := strings.TrimSuffix(filepath.Base(path), ".yaml")
			broker.PublishRecordEvent(kind, id)
		})
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
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server against the same knowledge base.
// Logs go to stderr so stdout stays clean for the protocol.
func RunMCP(cfg *Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	svc, store, err := buildService(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := svc.Reindex(context.Background()); err != nil {
		logger.Warn("initial reindex failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}

// buildService wires the loader, vector store, diff engine, and AI clients.
func buildService(cfg *Config, logger *slog.Logger) (*kbservice.Service, *vectorindex.Store, error) {
	ld, err := loader.New(cfg.Content.Dir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init loader: %w", err)
	}

	embedder := vectorindex.NewEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel,
		cfg.OpenAI.UseLocalEmbeddings, logger)
	store, err := vectorindex.Open(cfg.SQLite.Path, embedder, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init vector store: %w", err)
	}

	changelogPath := cfg.Changelog.Path
	if changelogPath == "" {
		changelogPath = filepath.Join(cfg.Content.Dir, "changelog.jsonl")
	}
	versionCacheDir := cfg.Changelog.VersionCacheDir
	if versionCacheDir == "" {
		versionCacheDir = filepath.Join(cfg.Content.Dir, ".version_cache")
	}

	changelog, err := diffengine.NewChangelog(changelogPath, logger)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("init changelog: %w", err)
	}
	versionCache, err := diffengine.NewVersionCache(versionCacheDir, logger)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("init version cache: %w", err)
	}
	engine := diffengine.NewEngine(changelog, versionCache, logger)

	client := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)

	svc := kbservice.New(ld, store, engine,
		propose.New(store, client, logger),
		synth.New(client, 0, logger),
		writer.New(ld.Root(), logger),
		logger)
	return svc, store, nil
}
