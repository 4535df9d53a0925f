package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hibi/internal/rollup"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Notes     NotesConfig       `yaml:"notes"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	AI        AIConfig          `yaml:"ai"`
	Enrich    EnrichConfig      `yaml:"enrich"`
	Ingest    IngestConfig      `yaml:"ingest"`
	Rollup    RollupConfig      `yaml:"rollup"`
	Selection SelectionConfig   `yaml:"selection"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Notes, &c.SQLite, &c.Auth, &c.AI, &c.Enrich, &c.Rollup, &c.Selection,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// Timezone names the zone that decides which daily note a message lands in.
	Timezone string `yaml:"timezone"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Timezone, validation.Required, validation.By(func(any) error {
			_, err := time.LoadLocation(c.Timezone)
			return err
		})),
	)
}

// Location returns the configured timezone, falling back to time.Local.
func (c *ApplicationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
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

// NotesConfig locates the vault and its subdirectories. The subdirectories
// are relative to Root.
type NotesConfig struct {
	Root     string `yaml:"root"`
	DailyDir string `yaml:"daily_dir"`
	TopicDir string `yaml:"topic_dir"`
	ImageDir string `yaml:"image_dir"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.DailyDir, validation.Required, validation.By(relativeDir)),
		validation.Field(&c.TopicDir, validation.Required, validation.By(relativeDir)),
		validation.Field(&c.ImageDir, validation.Required, validation.By(relativeDir)),
	)
}

func relativeDir(v any) error {
	s, _ := v.(string)
	if strings.HasPrefix(s, "/") || strings.Contains(s, "..") {
		return errors.New("must be a relative path inside the notes root")
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
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

// AIConfig configures the OpenAI-compatible completion endpoint and the
// retry policy for capacity errors.
type AIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	FastModel   string        `yaml:"fast_model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIKey, validation.Required.Error("is required (set HIBI_AI_API_KEY)")),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxAttempts, validation.Min(1)),
		validation.Field(&c.BaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxDelay, validation.Min(c.BaseDelay)),
	)
}

// EnrichConfig configures link-preview and image fetches.
type EnrichConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// Validate validates the enrich configuration.
func (c *EnrichConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// IngestConfig controls which messages are appended.
type IngestConfig struct {
	// Channels is the allowlist of channel identifiers. Empty accepts all.
	Channels   []string `yaml:"channels"`
	Supplement bool     `yaml:"supplement"`
}

// RollupConfig controls the daily rollup schedule.
type RollupConfig struct {
	Enabled bool `yaml:"enabled"`
	// At is the local time of day ("HH:MM") the previous day is rolled up.
	At string `yaml:"at"`
}

// Validate validates the rollup configuration.
func (c *RollupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.At, validation.When(c.Enabled, validation.Required, validation.By(func(any) error {
			_, _, err := rollup.ParseClock(c.At)
			return err
		}))),
	)
}

// SelectionConfig controls topic selection sessions.
type SelectionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Validate validates the selection configuration.
func (c *SelectionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IdleTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SweepInterval, validation.Required, validation.Min(time.Second)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values. Secrets
// are read from HIBI_AI_API_KEY and HIBI_AUTH_TOKEN so the service can start
// without a config file.
func NewDefaultConfig() *Config {
	cfg := &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Timezone: "Local",
		},
		Notes: NotesConfig{
			Root:     "./vault",
			DailyDir: "memos",
			TopicDir: "topics",
			ImageDir: "images",
		},
		SQLite: SQLiteConfig{
			Path: "./hibi.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		AI: AIConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
			APIKey:      os.Getenv("HIBI_AI_API_KEY"),
			Model:       "gemini-2.5-flash",
			FastModel:   "gemini-2.0-flash-lite",
			Timeout:     2 * time.Minute,
			MaxAttempts: 3,
			BaseDelay:   4 * time.Second,
			MaxDelay:    10 * time.Second,
		},
		Enrich: EnrichConfig{
			Timeout:   10 * time.Second,
			UserAgent: "hibi/1.0 (+link preview)",
		},
		Ingest: IngestConfig{
			Supplement: true,
		},
		Rollup: RollupConfig{
			Enabled: true,
			At:      "00:05",
		},
		Selection: SelectionConfig{
			IdleTimeout:   180 * time.Second,
			SweepInterval: time.Minute,
		},
	}
	if token := os.Getenv("HIBI_AUTH_TOKEN"); token != "" {
		cfg.Auth.Mode = AuthModeToken
		cfg.Auth.Token = token
	}
	return cfg
}
