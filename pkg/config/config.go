// Package config provides configuration management for the Grimoire runtime.
// Supports TOML configuration files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingValue  = errors.New("missing required configuration value")
)

// HandlerConfig holds error handler configuration
type HandlerConfig struct {
	// CaptureGlobalErrors installs process-wide uncaught error hooks
	CaptureGlobalErrors bool `toml:"capture_global_errors" env:"GRIMOIRE_CAPTURE_GLOBAL"`

	// LogErrors emits a structured log line for every handled error
	LogErrors bool `toml:"log_errors" env:"GRIMOIRE_LOG_ERRORS"`

	// ShowNotifications surfaces handled errors through the configured kind
	ShowNotifications bool `toml:"show_notifications" env:"GRIMOIRE_SHOW_NOTIFICATIONS"`

	// NotificationKind selects the presentation surface: "toast", "modal" or "inline"
	NotificationKind string `toml:"notification_kind" env:"GRIMOIRE_NOTIFICATION_KIND"`

	// NotificationDurationMS is the toast auto-dismiss delay in milliseconds
	NotificationDurationMS int `toml:"notification_duration_ms" env:"GRIMOIRE_NOTIFICATION_DURATION"`

	// IncludeStackTrace attaches a stack trace to each error record
	IncludeStackTrace bool `toml:"include_stack_trace" env:"GRIMOIRE_INCLUDE_STACK"`

	// MaxErrorHistory bounds the in-memory error history
	MaxErrorHistory int `toml:"max_error_history" env:"GRIMOIRE_MAX_HISTORY"`

	// Messages maps error type names, codes or /patterns/ to display messages
	Messages map[string]string `toml:"messages"`

	// DedupWindow rate-limits repeated surfacing of the same error, e.g. "5m"
	DedupWindow string `toml:"dedup_window" env:"GRIMOIRE_DEDUP_WINDOW"`
}

// NotificationConfig holds notification system configuration
type NotificationConfig struct {
	// MaxNotifications bounds concurrently visible notifications
	MaxNotifications int `toml:"max_notifications" env:"GRIMOIRE_MAX_NOTIFICATIONS"`

	// Position is one of the eight placement slots, e.g. "bottom-right"
	Position string `toml:"position" env:"GRIMOIRE_NOTIFICATION_POSITION"`

	// PauseOnHover freezes auto-dismiss countdowns while hovered
	PauseOnHover bool `toml:"pause_on_hover" env:"GRIMOIRE_PAUSE_ON_HOVER"`

	// DefaultDurationMS is the default auto-dismiss delay in milliseconds
	DefaultDurationMS int `toml:"default_duration_ms" env:"GRIMOIRE_DEFAULT_DURATION"`
}

// ServerConfig holds the UI event stream server configuration
type ServerConfig struct {
	// Enabled starts the HTTP/WebSocket event stream server
	Enabled bool `toml:"enabled" env:"GRIMOIRE_SERVER_ENABLED"`

	// Port for the HTTP server
	Port int `toml:"port" env:"GRIMOIRE_SERVER_PORT"`

	// AllowedOrigins for WebSocket upgrades (empty = same-origin only)
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" env:"GRIMOIRE_LOG_LEVEL"`
	Format string `toml:"format" env:"GRIMOIRE_LOG_FORMAT"`
	Output string `toml:"output" env:"GRIMOIRE_LOG_OUTPUT"`
}

// Config holds all Grimoire runtime configuration
type Config struct {
	Handler      HandlerConfig      `toml:"handler"`
	Notification NotificationConfig `toml:"notification"`
	Server       ServerConfig       `toml:"server"`
	Logging      LoggingConfig      `toml:"logging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Handler: HandlerConfig{
			CaptureGlobalErrors:    true,
			LogErrors:              true,
			ShowNotifications:      true,
			NotificationKind:       "toast",
			NotificationDurationMS: 5000,
			IncludeStackTrace:      false,
			MaxErrorHistory:        10,
			Messages:               map[string]string{},
			DedupWindow:            "5m",
		},
		Notification: NotificationConfig{
			MaxNotifications:  5,
			Position:          "bottom-right",
			PauseOnHover:      true,
			DefaultDurationMS: 5000,
		},
		Server: ServerConfig{
			Enabled: false,
			Port:    8780,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// ConfigPaths returns the default locations searched for a config file
func ConfigPaths() []string {
	paths := []string{"grimoire.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "grimoire", "grimoire.toml"))
	}
	paths = append(paths, "/etc/grimoire/grimoire.toml")
	return paths
}

// NotificationDuration returns the handler notification duration as a Duration
func (c *Config) NotificationDuration() time.Duration {
	return time.Duration(c.Handler.NotificationDurationMS) * time.Millisecond
}

// DedupWindow parses the configured dedup window, falling back to 5 minutes
func (c *Config) DedupWindow() time.Duration {
	d, err := time.ParseDuration(c.Handler.DedupWindow)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch c.Handler.NotificationKind {
	case "toast", "modal", "inline":
	default:
		return fmt.Errorf("%w: notification_kind must be toast, modal or inline, got %q",
			ErrInvalidConfig, c.Handler.NotificationKind)
	}

	if c.Handler.NotificationDurationMS < 0 {
		return fmt.Errorf("%w: notification_duration_ms must be >= 0", ErrInvalidConfig)
	}
	if c.Handler.MaxErrorHistory <= 0 {
		return fmt.Errorf("%w: max_error_history must be > 0", ErrInvalidConfig)
	}
	if c.Notification.MaxNotifications <= 0 {
		return fmt.Errorf("%w: max_notifications must be > 0", ErrInvalidConfig)
	}

	if !validPosition(c.Notification.Position) {
		return fmt.Errorf("%w: unknown notification position %q",
			ErrInvalidConfig, c.Notification.Position)
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}

	if c.Handler.DedupWindow != "" {
		if _, err := time.ParseDuration(c.Handler.DedupWindow); err != nil {
			return fmt.Errorf("%w: dedup_window: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

func validPosition(pos string) bool {
	switch pos {
	case "top-right", "top-left", "bottom-right", "bottom-left",
		"top-center", "bottom-center", "top", "bottom":
		return true
	}
	return false
}
