// ABOUTME: Entry point for the class-relay conversation server
// ABOUTME: Wires config, store, identity, topics, engine and relay together

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
	"github.com/joho/godotenv"

	"github.com/devzone/class-relay/internal/config"
	"github.com/devzone/class-relay/internal/engine"
	"github.com/devzone/class-relay/internal/i18n"
	"github.com/devzone/class-relay/internal/identity"
	"github.com/devzone/class-relay/internal/relay"
	"github.com/devzone/class-relay/internal/service"
	"github.com/devzone/class-relay/internal/session"
	"github.com/devzone/class-relay/internal/store"
	"github.com/devzone/class-relay/internal/topics"
)

// version is set at build time via -ldflags.
var version = "dev"

const banner = `
      _                            _
  ___| | __ _ ___ ___   _ __ ___ | | __ _ _   _
 / __| |/ _' / __/ __| | '__/ _ \| |/ _' | | | |
| (__| | (_| \__ \__ \ | | |  __/| | (_| | |_| |
 \___|_|\__,_|___/___/ |_|  \___||_|\__,_|\__, |
                                          |___/
`

// getConfigPath returns the path to the config file.
// Priority: CLASS_RELAY_CONFIG env var > ./class-relay.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CLASS_RELAY_CONFIG"); envPath != "" {
		return envPath
	}
	return "class-relay.yaml"
}

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: class-relay <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the relay with the console transport")
		fmt.Println("  init     Write a starter config file")
		fmt.Println("  check    Validate the config and open the store")
		fmt.Println("  version  Print the version")
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
	case "check":
		err = runCheck()
	case "version":
		fmt.Println(version)
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}

	if err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}

	setupLogging(cfg.Logging)
	color.Cyan(banner)
	color.Green("class-relay %s", version)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	catalog, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("loading locales: %w", err)
	}

	logger := slog.Default()
	msgr := newConsoleMessenger(os.Stdout)

	ident := identity.New(st, cfg.Roles.InstructorID, cfg.Roles.OwnerID, logger)
	sessions := session.NewStore(st, logger)
	if err := sessions.Recover(ctx); err != nil {
		return fmt.Errorf("recovering sessions: %w", err)
	}

	directory := topics.New(st, msgr, cfg.Chats.WorkspaceID, logger)
	router := relay.NewRouter(directory, sessions, ident, msgr, catalog,
		cfg.Chats.GroupID, cfg.Roles.OwnerID, logger)
	dispatcher := relay.NewDispatcher(msgr, cfg.Policy.BroadcastWindow, logger)
	eng := engine.New(cfg.Policy.RequireRegistration)

	svc := service.New(eng, sessions, ident, directory, router, dispatcher,
		st, msgr, catalog, service.Options{
			GroupID:           cfg.Chats.GroupID,
			RequireMembership: cfg.Policy.RequireMembership,
			DedupeTTL:         cfg.Policy.DedupeTTL,
		}, logger)

	slog.Info("class-relay started", "db", cfg.Database.Path)

	// The console transport reads inbound messages from stdin until EOF or
	// signal. A real deployment replaces this loop with the chat transport
	// adapter feeding svc.HandleInbound.
	return runConsole(ctx, svc)
}

func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	starter := `transport:
  token: ${CLASS_RELAY_TOKEN}

roles:
  instructor_id: ""
  owner_id: ""

chats:
  group_id: ""
  workspace_id: ""

database:
  path: data/class-relay.db

policy:
  require_registration: true
  require_membership: true
  broadcast_window: 4
  dedupe_ttl: 10m

logging:
  level: info
  format: text
`
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(starter), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	color.Green("wrote %s", path)
	return nil
}

func runCheck() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if _, err := i18n.Load(); err != nil {
		return fmt.Errorf("loading locales: %w", err)
	}

	color.Green("config ok, store ok")
	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
