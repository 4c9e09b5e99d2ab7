package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/docstore"
	"github.com/starford/tasklet/internal/permission"
	"github.com/starford/tasklet/internal/prompt"
	"github.com/starford/tasklet/internal/storage"
	"github.com/starford/tasklet/internal/syncengine"
)

// App is a fully wired tasklet instance: capability database, permission
// gate, sync engine and document store.
type App struct {
	Config *Config
	Logger *slog.Logger
	Engine *syncengine.Engine
	Store  *docstore.Store

	caps    *capability.DB
	logFile io.Closer
	version string
}

// NewLogger builds the JSON logger described by cfg. Lines go to out and,
// when app.log_file is set, to a size-rotated file.
func NewLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: 3,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})), closer
}

// Open wires the application, recovers the previous binding and loads the
// document. The caller must Close the returned App.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	a := &application{}
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	app := &App{Config: cfg, version: a.version}
	if app.version == "" {
		app.version = "dev"
	}

	logger := a.logger
	if logger == nil {
		out := a.logOutput
		if out == nil {
			out = os.Stdout
		}
		logger, app.logFile = NewLogger(cfg.App, out)
	}
	app.Logger = logger

	var caps capability.Store
	db, err := openCapabilities(cfg.Capabilities.Path, logger)
	if err != nil {
		logger.Warn("capability database unavailable, binding will not be remembered",
			slog.String("path", cfg.Capabilities.Path),
			slog.String("error", err.Error()))
		caps = capability.NewMemory()
	} else {
		app.caps = db
		caps = db
	}

	term := prompt.NewTerminal(cfg.Sync.Accessible)
	prompter := a.prompter
	if prompter == nil {
		prompter, err = prompt.ForMode(cfg.Sync.Prompt, term)
		if err != nil {
			app.Close()
			return nil, err
		}
	}
	picker := a.picker
	if picker == nil {
		picker = term
	}

	app.Engine = syncengine.New(caps, permission.NewGate(prompter, logger), storage.NewFS(),
		syncengine.WithPicker(picker),
		syncengine.WithSupported(cfg.Sync.Enabled),
		syncengine.WithSlot(cfg.Sync.Slot),
		syncengine.WithLogger(logger),
	)
	if err := app.Engine.Init(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("init sync: %w", err)
	}

	app.Store = docstore.New(app.Engine, docstore.WithLogger(logger))
	app.Store.Load(ctx)
	return app, nil
}

func openCapabilities(path string, logger *slog.Logger) (*capability.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create capabilities dir: %w", err)
		}
	}
	return capability.Open(path, logger)
}

// Close waits briefly for pending writes, then releases every resource.
func (a *App) Close() {
	if a.Engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.Engine.Flush(ctx); err != nil {
			a.Logger.Warn("pending writes not flushed", slog.String("error", err.Error()))
		}
		cancel()
		a.Engine.Close()
	}
	if a.caps != nil {
		if err := a.caps.Close(); err != nil {
			a.Logger.Warn("close capabilities", slog.String("error", err.Error()))
		}
	}
	a.closeLog()
}

func (a *App) closeLog() {
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
