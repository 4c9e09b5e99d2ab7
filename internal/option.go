package internal

import (
	"io"
	"log/slog"

	"github.com/starford/tasklet/internal/permission"
	"github.com/starford/tasklet/internal/syncengine"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	logger    *slog.Logger
	prompter  permission.Prompter
	picker    syncengine.Picker
	version   string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput sets where log lines go besides the optional log file.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithLogger replaces the configured logger entirely.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithPrompter overrides the consent prompter chosen by sync.prompt.
func WithPrompter(p permission.Prompter) Option {
	return func(a *application) {
		a.prompter = p
	}
}

// WithPicker overrides the interactive data file picker.
func WithPicker(p syncengine.Picker) Option {
	return func(a *application) {
		a.picker = p
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
