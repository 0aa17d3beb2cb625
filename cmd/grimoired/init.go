package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/grimoire-docs/grimoire/pkg/config"
)

// runInitCommand walks the user through an interactive configuration setup
// and writes the result as a TOML file.
func runInitCommand(cliCfg cliConfig) {
	cfg := config.DefaultConfig()

	kind := cfg.Handler.NotificationKind
	position := cfg.Notification.Position
	captureGlobal := cfg.Handler.CaptureGlobalErrors
	pauseOnHover := cfg.Notification.PauseOnHover
	serverEnabled := cfg.Server.Enabled
	port := strconv.Itoa(cfg.Server.Port)
	dedupWindow := cfg.Handler.DedupWindow

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Grimoire runtime setup").
				Description("Configure how handled errors are presented."),
			huh.NewSelect[string]().
				Title("How should errors be presented?").
				Options(
					huh.NewOption("Toast (corner popup, auto-dismiss)", "toast"),
					huh.NewOption("Modal (blocking dialog)", "modal"),
					huh.NewOption("Inline (next to the failing element)", "inline"),
				).
				Value(&kind),
			huh.NewSelect[string]().
				Title("Where should notifications appear?").
				Options(
					huh.NewOption("Bottom right", "bottom-right"),
					huh.NewOption("Bottom left", "bottom-left"),
					huh.NewOption("Bottom center", "bottom-center"),
					huh.NewOption("Top right", "top-right"),
					huh.NewOption("Top left", "top-left"),
					huh.NewOption("Top center", "top-center"),
				).
				Value(&position),
			huh.NewConfirm().
				Title("Capture uncaught errors process-wide?").
				Value(&captureGlobal),
			huh.NewConfirm().
				Title("Pause notification countdowns on hover?").
				Value(&pauseOnHover),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the HTTP API and event stream?").
				Value(&serverEnabled),
			huh.NewInput().
				Title("API server port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > 65535 {
						return fmt.Errorf("port must be between 1 and 65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("Repeat suppression window (e.g. 5m, 0s to disable)").
				Value(&dedupWindow).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					if _, err := time.ParseDuration(s); err != nil {
						return fmt.Errorf("invalid duration: %v", err)
					}
					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "setup aborted: %v\n", err)
		os.Exit(1)
	}

	cfg.Handler.NotificationKind = kind
	cfg.Handler.CaptureGlobalErrors = captureGlobal
	cfg.Handler.DedupWindow = dedupWindow
	cfg.Notification.Position = position
	cfg.Notification.PauseOnHover = pauseOnHover
	cfg.Server.Enabled = serverEnabled
	if n, err := strconv.Atoi(port); err == nil {
		cfg.Server.Port = n
	}

	path := cliCfg.configPath
	if path == "" {
		path = "grimoire.toml"
	}

	if err := config.Save(cfg, path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("configuration written to %s\n", path)
}
