// ABOUTME: Entry point for the botdesk session and report backend
// ABOUTME: Wires config, store, session manager, report controller, and access guard

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/kestrelworks/botdesk/internal/access"
	"github.com/kestrelworks/botdesk/internal/config"
	"github.com/kestrelworks/botdesk/internal/flowtrack"
	"github.com/kestrelworks/botdesk/internal/report"
	"github.com/kestrelworks/botdesk/internal/session"
	"github.com/kestrelworks/botdesk/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _           _      _           _
| |__   ___ | |_ __| | ___  ___| | __
| '_ \ / _ \| __/ _' |/ _ \/ __| |/ /
| |_) | (_) | || (_| |  __/\__ \   <
|_.__/ \___/ \__\__,_|\___||___/_|\_\
`

const defaultConfig = `database:
  path: ${HOME}/.local/share/botdesk/botdesk.db

reports:
  max_name_len: 128
  confirm_window: 5m
  sweep_interval: 1m

logging:
  level: info
  format: text
`

// getConfigPath returns the path to the botdesk config file.
// Priority: BOTDESK_CONFIG env var > XDG_CONFIG_HOME/botdesk/botdesk.yaml > ~/.config/botdesk/botdesk.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BOTDESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "botdesk.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "botdesk", "botdesk.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: botdesk <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the session and report backend")
		fmt.Println("  init      Write a default config file")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// backend bundles the services the handler layer (chat transport, menu
// rendering) drives in response to user input events.
type backend struct {
	Sessions *session.Manager
	Reports  *report.Controller
	Guard    *access.Guard
	Tracker  *flowtrack.Tracker
}

func newBackend(st store.Store, logger *slog.Logger, cfg *config.Config) *backend {
	return &backend{
		Sessions: session.NewManager(st, logger),
		Reports: report.NewController(st, logger, report.Options{
			ConfirmWindow: cfg.Reports.ConfirmWindow,
			MaxNameLen:    cfg.Reports.MaxNameLen,
			SweepInterval: cfg.Reports.SweepInterval,
		}),
		Guard:   access.NewGuard(st, logger),
		Tracker: flowtrack.New(),
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting botdesk", "config", configPath, "db", cfg.Database.Path)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	be := newBackend(st, logger, cfg)
	defer be.Reports.Close()

	logger.Info("botdesk ready")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Wrote %s\n", configPath)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
