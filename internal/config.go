package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/prompt"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App          ApplicationConfig  `yaml:"app"`
	Sync         SyncConfig         `yaml:"sync"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Auth         AuthConfig         `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Capabilities.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel     slog.Level `yaml:"log_level"`
	LogFile      string     `yaml:"log_file"`
	LogMaxSizeMB int        `yaml:"log_max_size_mb"`
	HTTP         HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogMaxSizeMB, validation.Min(0), validation.Max(10240)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SyncConfig controls binding to a data file.
//
// Enabled=false models an environment without file access: the app runs
// in memory only and reports the unsupported status.
type SyncConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Slot       string `yaml:"slot"`
	Prompt     string `yaml:"prompt"`
	Accessible bool   `yaml:"accessible"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.Slot == "" {
		c.Slot = capability.DefaultSlot
	}
	if c.Prompt == "" {
		c.Prompt = prompt.ModeTerminal
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Prompt, validation.In(prompt.ModeTerminal, prompt.ModeAuto, prompt.ModeNever)),
	)
}

// CapabilitiesConfig holds the SQLite database that remembers bindings.
type CapabilitiesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the capabilities configuration.
func (c *CapabilitiesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:     slog.LevelInfo,
			LogMaxSizeMB: 10,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Sync: SyncConfig{
			Enabled: true,
			Slot:    capability.DefaultSlot,
			Prompt:  prompt.ModeTerminal,
		},
		Capabilities: CapabilitiesConfig{
			Path: "./tasklet.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
