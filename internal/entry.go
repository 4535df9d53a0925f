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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/hibi/internal/annotate"
	"github.com/starford/hibi/internal/api"
	"github.com/starford/hibi/internal/enrich"
	"github.com/starford/hibi/internal/index"
	"github.com/starford/hibi/internal/ingest"
	"github.com/starford/hibi/internal/mcpserver"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/noteservice"
	"github.com/starford/hibi/internal/notestore"
	"github.com/starford/hibi/internal/rollup"
	"github.com/starford/hibi/internal/selection"
	"github.com/starford/hibi/internal/sse"
	"github.com/starford/hibi/internal/storage"
)

// components is the wired pipeline shared by every run mode.
type components struct {
	logger    *slog.Logger
	store     *storage.FS
	db        *index.DB
	broker    *sse.Broker
	engine    *rollup.Engine
	selection *selection.Manager
	svc       *noteservice.Service
}

func (c *components) Close() {
	c.broker.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}

// setup validates the configuration, initializes logging and wires the
// pipeline. The caller must Close the result.
func setup(opts ...Option) (*components, error) {
	app := newApplication(opts...)
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	loc := cfg.App.Location()
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_root", cfg.Notes.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("timezone", loc.String()),
		slog.String("model", cfg.AI.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directories exist.
	for _, dir := range []string{cfg.Notes.DailyDir, cfg.Notes.TopicDir, cfg.Notes.ImageDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Notes.Root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create vault dir: %w", err)
		}
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Notes.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	notes := notestore.New(store, notestore.Layout{
		DailyDir: cfg.Notes.DailyDir,
		TopicDir: cfg.Notes.TopicDir,
		ImageDir: cfg.Notes.ImageDir,
	}, logger)

	enricher := enrich.New(enrich.Config{
		Timeout:   cfg.Enrich.Timeout,
		UserAgent: cfg.Enrich.UserAgent,
	}, notes, logger)

	ai := annotate.NewClient(annotate.NewOpenAIBackend(annotate.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Timeout: cfg.AI.Timeout,
	}), annotate.Config{
		Model:       cfg.AI.Model,
		FastModel:   cfg.AI.FastModel,
		MaxAttempts: cfg.AI.MaxAttempts,
		BaseDelay:   cfg.AI.BaseDelay,
		MaxDelay:    cfg.AI.MaxDelay,
		CallTimeout: cfg.AI.Timeout,
	}, logger)

	ingestor := ingest.New(notes, enricher, ai, ingest.Config{
		Channels:   cfg.Ingest.Channels,
		Supplement: cfg.Ingest.Supplement,
		Location:   loc,
	}, logger, ingest.WithEvents(broker))

	engine := rollup.NewEngine(notes, ai, broker, logger)

	sel := selection.NewManager(ai, notes, selection.Config{
		IdleTimeout: cfg.Selection.IdleTimeout,
		Location:    loc,
	}, logger)

	svc := noteservice.NewService(noteservice.Deps{
		Notes:     notes,
		Index:     db,
		Ingest:    ingestor,
		Rollup:    engine,
		Selection: sel,
		Topics:    ai,
		Location:  loc,
	})

	return &components{
		logger:    logger,
		store:     store,
		db:        db,
		broker:    broker,
		engine:    engine,
		selection: sel,
		svc:       svc,
	}, nil
}

// Run starts the HTTP server, the index watcher, the daily rollup schedule
// and the selection sweeper.
func Run(ctx context.Context, opts ...Option) error {
	c, err := setup(opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	app := newApplication(opts...)
	cfg := app.config
	logger := c.logger

	var sched *rollup.Scheduler
	if cfg.Rollup.Enabled {
		sched, err = rollup.NewScheduler(c.engine, cfg.Rollup.At, cfg.App.Location(), logger)
		if err != nil {
			return err
		}
	}

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		publish := func(ch index.Change) {
			c.broker.PublishNoteEvent(ch.Op, ch.Path, string(ch.Kind))
		}
		if err := index.Watch(gCtx, c.db, c.store, logger, publish); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Daily rollup of the previous day.
	if sched != nil {
		g.Go(func() error {
			return sched.Run(gCtx)
		})
	}

	// Drop idle topic selections.
	g.Go(func() error {
		return c.selection.RunSweeper(gCtx, cfg.Selection.SweepInterval)
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
			cancel()
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
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

// RunRollup rolls up a single day and returns. An empty date means today.
func RunRollup(ctx context.Context, date string, opts ...Option) (rollup.Outcome, error) {
	c, err := setup(opts...)
	if err != nil {
		return rollup.Outcome{}, err
	}
	defer c.Close()

	out, err := c.svc.Rollup(ctx, date)
	if err != nil {
		return out, err
	}
	c.logger.Info("Rollup finished",
		slog.String("date", out.Date.Format(models.DateLayout)),
		slog.String("state", string(out.State)),
		slog.String("reason", string(out.Reason)))
	return out, nil
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
// The index watcher keeps search results current meanwhile.
func RunMCP(ctx context.Context, opts ...Option) error {
	c, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := newApplication(opts...).config
	srv := mcpserver.New(c.svc)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := index.Watch(gCtx, c.db, c.store, c.logger, nil); err != nil {
			c.logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		return c.selection.RunSweeper(gCtx, cfg.Selection.SweepInterval)
	})
	g.Go(func() error {
		defer cancel()
		c.logger.Info("MCP server listening on stdio")
		return srv.ServeStdio()
	})

	return g.Wait()
}
