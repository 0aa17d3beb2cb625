// Package config provides configuration loading for the Grimoire runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from a file path
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// If path is empty, search for default config files
	if path == "" {
		for _, p := range ConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	// If no config file found, return defaults
	if path == "" {
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Handler overrides
	if v := os.Getenv("GRIMOIRE_CAPTURE_GLOBAL"); v != "" {
		cfg.Handler.CaptureGlobalErrors = isTrue(v)
	}
	if v := os.Getenv("GRIMOIRE_LOG_ERRORS"); v != "" {
		cfg.Handler.LogErrors = isTrue(v)
	}
	if v := os.Getenv("GRIMOIRE_SHOW_NOTIFICATIONS"); v != "" {
		cfg.Handler.ShowNotifications = isTrue(v)
	}
	if v := os.Getenv("GRIMOIRE_NOTIFICATION_KIND"); v != "" {
		cfg.Handler.NotificationKind = v
	}
	if v := os.Getenv("GRIMOIRE_NOTIFICATION_DURATION"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Handler.NotificationDurationMS = ms
		}
	}
	if v := os.Getenv("GRIMOIRE_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Handler.MaxErrorHistory = n
		}
	}
	if v := os.Getenv("GRIMOIRE_DEDUP_WINDOW"); v != "" {
		cfg.Handler.DedupWindow = v
	}

	// Notification overrides
	if v := os.Getenv("GRIMOIRE_MAX_NOTIFICATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Notification.MaxNotifications = n
		}
	}
	if v := os.Getenv("GRIMOIRE_NOTIFICATION_POSITION"); v != "" {
		cfg.Notification.Position = v
	}
	if v := os.Getenv("GRIMOIRE_PAUSE_ON_HOVER"); v != "" {
		cfg.Notification.PauseOnHover = isTrue(v)
	}

	// Server overrides
	if v := os.Getenv("GRIMOIRE_SERVER_ENABLED"); v != "" {
		cfg.Server.Enabled = isTrue(v)
	}
	if v := os.Getenv("GRIMOIRE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Logging overrides
	if v := os.Getenv("GRIMOIRE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GRIMOIRE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GRIMOIRE_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}

// Save saves the configuration to a file
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
