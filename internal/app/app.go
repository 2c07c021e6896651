package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/audit"
	"github.com/planora/planora/internal/config"
	"github.com/planora/planora/internal/db"
	"github.com/planora/planora/internal/events"
	"github.com/planora/planora/internal/gateway"
	"github.com/planora/planora/internal/invites"
	"github.com/planora/planora/internal/notifications"
	"github.com/planora/planora/internal/notify"
	"github.com/planora/planora/internal/stakeholders"
	"github.com/planora/planora/internal/users"
)

// NewServices wires the service layer over an existing pool.
func NewServices(pool *pgxpool.Pool, cfg *config.Config) *Services {
	usersSvc := users.NewService(pool)
	return &Services{
		Users:         usersSvc,
		Stakeholders:  stakeholders.NewService(pool),
		Invites:       invites.NewService(pool, cfg.InviteTTLDays, usersSvc.Watcher()),
		Events:        events.NewService(pool),
		Notifications: notifications.NewService(pool),
		Gateway:       gateway.New(users.NewDirectory(usersSvc)),
		Auditor:       audit.NewWriter(pool),
		Notifier:      notify.NewClient(cfg.NotifyWebhookURL, cfg.NotifyTimeoutMS),
	}
}

// App holds the application state
type App struct {
	Config   *config.Config
	DB       *pgxpool.Pool
	Router   http.Handler
	Services *Services

	server *http.Server
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize logger
	setupLogger(cfg.LogLevel)

	log.Info().Msg("Initializing Planora application")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	// Connect to database
	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	// Run migrations if in dev mode
	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	svc := NewServices(pool, cfg)
	router := NewRouter(pool, cfg, svc)

	app := &App{
		Config:   cfg,
		DB:       pool,
		Router:   router,
		Services: svc,
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully, then releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down application")
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	a.Close()
	return err
}

// Close releases application resources without draining in-flight requests.
func (a *App) Close() {
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		a.DB.Close()
	}
}

// setupLogger configures the global logger
func setupLogger(level string) {
	// Set up pretty console output for development
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	// Set log level
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
