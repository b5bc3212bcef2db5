// Package main is the entry point for the mailroom ops API server.
//
// The ops API serves the email audit trail (recent sends, per-user history,
// skip reasons) and a manual enqueue endpoint for re-driving individual
// email jobs. It runs as a standard HTTP server; in local mode the enqueue
// endpoint logs instead of writing to SQS.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/api/handlers"
	"mailroom/internal/config"
	"mailroom/internal/core"
	"mailroom/internal/db"
	"mailroom/internal/queue"
	"mailroom/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("mailroom ops API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	var publisher handlers.JobPublisher
	if cfg.IsLocal() || cfg.AWS.EmailJobQueue == "" {
		publisher = &logPublisher{logger: typedLogger}
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS SDK config: %w", err)
		}
		publisher = queue.NewEmailJobPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.EmailJobQueue, typedLogger)
	}

	router := buildRouter(pool, publisher, typedLogger)
	return runHTTPServer(router, cfg, logger)
}

// buildRouter assembles the middleware chain and mounts all routes.
func buildRouter(pool *pgxpool.Pool, publisher handlers.JobPublisher, logger types.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(core.RequestID)
	r.Use(core.Recoverer(logger))
	r.Use(core.RequestLogger(logger))

	r.Get("/health", core.HealthHandler(&dbProbe{pool: pool}))

	r.Route("/v1", func(r chi.Router) {
		handlers.NewEmailLogHandler(db.NewEmailLogRepository(pool), logger).RegisterRoutes(r)
		handlers.NewEmailJobHandler(publisher, logger).RegisterRoutes(r)
	})

	return r
}

// dbProbe reports database connectivity for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// logPublisher is the local-mode stand-in for the SQS publisher. Enqueue
// requests are validated and logged but never leave the process.
type logPublisher struct {
	logger types.Logger
}

func (p *logPublisher) Publish(_ context.Context, msg types.EmailJobMessage, reason string) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	p.logger.Info("local mode: email job logged instead of enqueued",
		"email_type", msg.Type,
		"user_id", msg.UserID,
		"reason", reason,
		"trace_id", msg.TraceID,
	)
	return nil
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)
var _ handlers.JobPublisher = (*queue.EmailJobPublisher)(nil)
