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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tasklet/internal/api"
	"github.com/starford/tasklet/internal/checksum"
	"github.com/starford/tasklet/internal/document"
	"github.com/starford/tasklet/internal/mcpserver"
	"github.com/starford/tasklet/internal/permission"
	"github.com/starford/tasklet/internal/prompt"
	"github.com/starford/tasklet/internal/sse"
	"github.com/starford/tasklet/internal/syncengine"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	logger := app.Logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("capabilities_path", cfg.Capabilities.Path),
		slog.Bool("sync_enabled", cfg.Sync.Enabled),
		slog.String("sync_status", app.Engine.Status().String()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker fed by engine and store subscriptions.
	broker := sse.NewBroker(500 * time.Millisecond)
	defer broker.Close()
	unsubscribe := wireEvents(app, broker)
	defer unsubscribe()

	apiRouter := api.NewRouter(api.NewHandler(app.Store, app.Engine), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"sync":    app.Engine.Status().String(),
			"durable": app.Store.Durable(),
		})
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

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

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := app.Store.Flush(shutdownCtx); err != nil {
			logger.Warn("pending writes not flushed", slog.String("error", err.Error()))
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

// wireEvents forwards engine and store notifications to the broker.
func wireEvents(app *App, broker *sse.Broker) (unsubscribe func()) {
	offStatus := app.Engine.OnStatusChange(func(s syncengine.Status) {
		data := sse.StatusData{Status: s.String(), Durable: s == syncengine.Ready}
		if h, ok := app.Engine.Handle(); ok {
			data.Target = h.Name()
		}
		broker.PublishStatus(data)
	})
	offError := app.Engine.OnError(broker.PublishError)
	offDoc := app.Store.OnChange(func(doc document.Document) {
		raw, err := document.Marshal(doc)
		if err != nil {
			return
		}
		broker.PublishDocument(sse.DocumentData{Items: len(doc.Items), Checksum: checksum.Sum(raw)})
	})
	return func() {
		offDoc()
		offError()
		offStatus()
	}
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
// stdin carries the protocol, so terminal prompts are replaced by denial.
func ServeMCP(ctx context.Context, opts ...Option) error {
	probe := &application{}
	for _, opt := range opts {
		opt(probe)
	}
	noTerminal := probe.prompter == nil && probe.config != nil && probe.config.Sync.Prompt == prompt.ModeTerminal
	if noTerminal {
		opts = append(opts, WithPrompter(permission.NeverGrant))
	}

	app, err := Open(ctx, append(opts, WithLogOutput(os.Stderr))...)
	if err != nil {
		return err
	}
	defer app.Close()

	if noTerminal {
		app.Logger.Warn("terminal prompts are unavailable over stdio; set sync.prompt to auto to reuse the stored binding")
	}

	app.Logger.Info("Starting MCP server on stdio",
		slog.String("sync_status", app.Engine.Status().String()))
	return mcpserver.New(app.Store, app.Engine, app.version).ServeStdio()
}
