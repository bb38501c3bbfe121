// Package main is a terminal client for the booking assistant.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/booking-assistant/internal/backend"
	"github.com/capitalize-ai/booking-assistant/internal/config"
	"github.com/capitalize-ai/booking-assistant/internal/dialogue"
	"github.com/capitalize-ai/booking-assistant/internal/service"
	"github.com/capitalize-ai/booking-assistant/internal/session"
	"github.com/capitalize-ai/booking-assistant/pkg/logger"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

type chatOptions struct {
	configPath string
	backendURL string
	store      string
	sqlitePath string
	user       string
	logFile    string
	cookie     string
	csrfToken  string
	altScreen  bool
}

func newRootCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "booking-chat",
		Short: "Chat with the meeting room booking assistant",
		Long:  "Runs an interactive terminal conversation against the booking backend. History is kept per user and resumed on the next start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to a config file (defaults and environment otherwise)")
	f.StringVar(&opts.backendURL, "backend-url", "", "booking backend chat endpoint, overrides BOOKING_BACKEND_URL")
	f.StringVar(&opts.store, "store", config.StoreSQLite, "history store: sqlite or memory")
	f.StringVar(&opts.sqlitePath, "sqlite", "", "sqlite file for history, overrides SQLITE_PATH")
	f.StringVarP(&opts.user, "user", "u", defaultUser(), "whose conversation to open")
	f.StringVar(&opts.logFile, "log-file", "booking-chat.log", "where to write logs")
	f.StringVar(&opts.cookie, "cookie", "", "session cookie forwarded to the backend")
	f.StringVar(&opts.csrfToken, "csrf-token", "", "CSRF token forwarded to the backend")
	f.BoolVar(&opts.altScreen, "alt-screen", true, "use the terminal's alternate screen")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "booking-chat %s (commit: %s)\n", Version, Commit)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func runChat(cmd *cobra.Command, opts chatOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.backendURL != "" {
		cfg.BackendURL = opts.backendURL
	}
	if opts.sqlitePath != "" {
		cfg.SQLitePath = opts.sqlitePath
	}
	if opts.user == "" {
		return fmt.Errorf("--user is required")
	}

	log, err := logger.NewToFile(cfg.LogLevel, opts.logFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer log.Sync()

	blobs, closeStore, err := openLocalBlobs(opts.store, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := backend.WithCredentials(cmd.Context(), backend.Credentials{
		Cookie:    opts.cookie,
		CSRFToken: opts.csrfToken,
	})

	client := backend.NewHTTPClient(cfg.BackendURL, cfg.BackendTimeout, log)
	key := service.SessionKey(opts.user)
	ctrl, err := dialogue.New(ctx, dialogue.Options{
		Backend:     client,
		Store:       session.NewStore(blobs, key, log),
		Logger:      log,
		SessionKey:  key,
		WelcomeText: cfg.WelcomeText,
	})
	if err != nil {
		return err
	}
	log.Info("terminal chat started", zap.String("session_key", key), zap.String("backend_url", cfg.BackendURL))

	programOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.altScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(ctx, ctrl, opts.user), programOpts...)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return nil
}

func openLocalBlobs(driver, path string) (session.BlobStore, func(), error) {
	switch driver {
	case config.StoreMemory:
		return session.NewMemoryBlobs(), func() {}, nil
	case config.StoreSQLite:
		db, err := session.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		blobs, err := session.NewSQLBlobs(db)
		if err != nil {
			return nil, nil, err
		}
		return blobs, func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store %q, use sqlite or memory", driver)
	}
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func execute(cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
