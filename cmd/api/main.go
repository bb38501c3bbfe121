// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/booking-assistant/internal/backend"
	"github.com/capitalize-ai/booking-assistant/internal/config"
	"github.com/capitalize-ai/booking-assistant/internal/handler"
	"github.com/capitalize-ai/booking-assistant/internal/middleware"
	natsclient "github.com/capitalize-ai/booking-assistant/internal/nats"
	"github.com/capitalize-ai/booking-assistant/internal/service"
	"github.com/capitalize-ai/booking-assistant/internal/session"
	"github.com/capitalize-ai/booking-assistant/pkg/logger"
	"github.com/capitalize-ai/booking-assistant/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server",
		zap.String("store", cfg.StoreDriver),
		zap.String("backend_url", cfg.BackendURL),
	)

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "booking-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	deps := &dependencies{}
	defer deps.close()

	var natsClient *natsclient.Client
	if cfg.StoreDriver == config.StoreNATS || cfg.NATSEvents {
		var err error
		natsClient, err = natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		deps.onClose(natsClient.Close)
		deps.ready(handler.ReadinessCheck{Name: "nats", Check: natsClient.Ready})
	}

	blobs, err := openBlobs(ctx, cfg, natsClient, deps)
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithWelcomeText(cfg.WelcomeText)}
	if cfg.NATSEvents {
		publisher := natsclient.NewEventPublisher(natsClient)
		if err := publisher.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}
		opts = append(opts, service.WithEvents(publisher))
	}

	bookingClient := backend.NewHTTPClient(cfg.BackendURL, cfg.BackendTimeout, log)
	sessions := service.NewSessionService(bookingClient, blobs, log, opts...)

	healthHandler := handler.NewHealthHandler(deps.checks...)
	chatHandler := handler.NewChatHandler(sessions, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(nil))

	// Health endpoints (no auth required)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Get("/health", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(middleware.Credentials)

		r.Route("/chat", func(r chi.Router) {
			r.Get("/", chatHandler.State)
			r.Delete("/", chatHandler.Forget)
			r.Post("/messages", chatHandler.Send)
			r.Post("/selections", chatHandler.Select)
			r.Post("/reset", chatHandler.Reset)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// dependencies collects readiness checks and cleanup for opened backends.
type dependencies struct {
	checks  []handler.ReadinessCheck
	closers []func()
}

func (d *dependencies) ready(c handler.ReadinessCheck) { d.checks = append(d.checks, c) }
func (d *dependencies) onClose(f func()) { d.closers = append(d.closers, f) }

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func openBlobs(ctx context.Context, cfg *config.Config, nc *natsclient.Client, deps *dependencies) (session.BlobStore, error) {
	switch cfg.StoreDriver {
	case config.StoreRedis:
		client, err := session.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		deps.onClose(func() { client.Close() })
		deps.ready(handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		return session.NewRedisBlobs(client, cfg.SessionTTL), nil

	case config.StoreNATS:
		return natsclient.NewKVBlobs(ctx, nc, cfg.NATSBucket, cfg.SessionTTL)

	case config.StoreSQLite:
		db, err := session.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql handle: %w", err)
		}
		deps.onClose(func() { sqlDB.Close() })
		deps.ready(handler.ReadinessCheck{Name: "sqlite", Check: sqlDB.PingContext})
		return session.NewSQLBlobs(db)

	default:
		return session.NewMemoryBlobs(), nil
	}
}
