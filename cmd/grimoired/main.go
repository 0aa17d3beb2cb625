// Grimoire runtime daemon.
//
// grimoired hosts the error handling and notification runtime for a
// Grimoire deployment: it intercepts uncaught errors, keeps the rolling
// error history, drives the notification stack, and exposes both over an
// HTTP API with a WebSocket event stream for the web shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/grimoire-docs/grimoire/pkg/config"
	"github.com/grimoire-docs/grimoire/pkg/errhandler"
	"github.com/grimoire-docs/grimoire/pkg/eventbus"
	"github.com/grimoire-docs/grimoire/pkg/httpapi"
	"github.com/grimoire-docs/grimoire/pkg/logger"
	"github.com/grimoire-docs/grimoire/pkg/notify"
	"github.com/grimoire-docs/grimoire/pkg/present"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

type cliConfig struct {
	command    string
	configPath string
	port       int
	logLevel   string
	version    bool
	help       bool
}

func main() {
	cliCfg := parseFlags()

	if cliCfg.version {
		printVersion()
		return
	}
	if cliCfg.help {
		printHelp()
		return
	}

	switch cliCfg.command {
	case "init":
		runInitCommand(cliCfg)
	case "validate":
		runValidateCommand(cliCfg)
	case "version":
		printVersion()
	case "help":
		printHelp()
	case "":
		runDaemon(cliCfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cliCfg.command)
		printHelp()
		os.Exit(1)
	}
}

func parseFlags() cliConfig {
	var cfg cliConfig

	flag.StringVar(&cfg.configPath, "config", "", "Path to configuration file")
	flag.IntVar(&cfg.port, "port", 0, "API server port (overrides config)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.version, "version", false, "Print version and exit")
	flag.BoolVar(&cfg.help, "help", false, "Print usage and exit")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		cfg.command = args[0]
	}
	return cfg
}

func printVersion() {
	fmt.Printf("grimoired %s (built %s)\n", version, buildTime)
}

func printHelp() {
	fmt.Print(`grimoired - Grimoire error handling and notification runtime

Usage:
  grimoired [flags]            Run the daemon
  grimoired init               Interactive configuration setup
  grimoired validate           Validate the configuration file
  grimoired version            Print version

Flags:
  -config PATH      Path to configuration file
  -port PORT        API server port (overrides config)
  -log-level LEVEL  Log level: debug, info, warn, error
  -version          Print version and exit
  -help             Print this help
`)
}

func runValidateCommand(cliCfg cliConfig) {
	cfg, err := config.Load(cliCfg.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("configuration valid (notification_kind=%s, server_enabled=%t)\n",
		cfg.Handler.NotificationKind, cfg.Server.Enabled)
}

func runDaemon(cliCfg cliConfig) {
	cfg, err := config.Load(cliCfg.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cliCfg.logLevel != "" {
		cfg.Logging.Level = cliCfg.logLevel
	}
	if cliCfg.port != 0 {
		cfg.Server.Port = cliCfg.port
	}

	if err := logger.Initialize(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Global()
	log.Info("starting grimoired", "version", version)

	bus := eventbus.New(log)
	renderer := present.NewANSIRenderer(os.Stdout)

	notifications := notify.NewSystem(notify.Options{
		MaxVisible:      cfg.Notification.MaxNotifications,
		Position:        present.Position(cfg.Notification.Position),
		PauseOnHover:    cfg.Notification.PauseOnHover,
		DefaultDuration: time.Duration(cfg.Notification.DefaultDurationMS) * time.Millisecond,
		Renderer:        renderer,
		Logger:          log,
		Bus:             bus,
	})

	source := errhandler.NewRuntimeSource()
	handler := errhandler.New(errhandler.Options{
		CaptureGlobalErrors:  cfg.Handler.CaptureGlobalErrors,
		LogErrors:            cfg.Handler.LogErrors,
		ShowNotifications:    cfg.Handler.ShowNotifications,
		NotificationKind:     present.Kind(cfg.Handler.NotificationKind),
		NotificationDuration: cfg.NotificationDuration(),
		IncludeStackTrace:    cfg.Handler.IncludeStackTrace,
		Messages:             cfg.Handler.Messages,
		MaxErrorHistory:      cfg.Handler.MaxErrorHistory,
		DedupWindow:          cfg.DedupWindow(),
		Source:               source,
		Sink:                 notifications,
		Renderer:             renderer,
		Logger:               log,
		Bus:                  bus,
	})
	if err := handler.Initialize(); err != nil {
		log.Error("failed to initialize error handler", "error", err.Error())
		os.Exit(1)
	}

	// Hourly maintenance: drop stale dedup signatures.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		if removed := handler.CleanupDedup(); removed > 0 {
			log.Debug("dedup cleanup", "removed", removed)
		}
	}); err != nil {
		log.Error("failed to schedule dedup cleanup", "error", err.Error())
		os.Exit(1)
	}
	scheduler.Start()

	var apiServer *httpapi.Server
	if cfg.Server.Enabled {
		apiServer = httpapi.NewServer(httpapi.Options{
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Handler:        handler,
			Notifications:  notifications,
			Bus:            bus,
			Logger:         log,
		})
		source.Go(func() {
			if err := apiServer.Start(); err != nil {
				log.Error("API server failed", "error", err.Error())
			}
		})
	}

	log.Info("grimoired ready",
		"capture_global", cfg.Handler.CaptureGlobalErrors,
		"notification_kind", cfg.Handler.NotificationKind,
		"server_enabled", cfg.Server.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Stop(ctx); err != nil {
			log.Warn("API server shutdown error", "error", err.Error())
		}
		cancel()
	}
	<-scheduler.Stop().Done()
	handler.Destroy()
	notifications.Destroy()
	bus.Close()

	log.Info("grimoired stopped")
}
