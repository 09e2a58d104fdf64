package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/s1natex/taskledger/internal/config"
	"github.com/s1natex/taskledger/internal/middleware"
	"github.com/s1natex/taskledger/internal/tasks"
	"github.com/s1natex/taskledger/internal/telemetry"
)

const serviceName = "taskledger"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("server_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger := newLogger(stdout, cfg.LogLevel)
	slog.SetDefault(logger) // for third-party packages that use slog

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.Options{
		Exporter:    cfg.TraceExporter,
		ServiceName: serviceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing_shutdown", slog.String("error", err.Error()))
		}
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("store_ready", slog.String("storage", cfg.Storage))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(tasks.NewInstrumentedStore(store, logger), logger, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutdown", slog.Duration("timeout", cfg.ShutdownTimeout))
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// openStore returns the configured backend and a func releasing it.
func openStore(ctx context.Context, cfg config.Config) (tasks.Store, func(), error) {
	var (
		sqlStore *tasks.SQLStore
		err      error
	)
	switch cfg.Storage {
	case config.StorageMemory:
		return tasks.NewInMemoryStore(), func() {}, nil
	case config.StorageSQLite:
		dsn, derr := tasks.SQLiteFileDSN(cfg.SQLitePath)
		if derr != nil {
			return nil, nil, fmt.Errorf("sqlite path: %w", derr)
		}
		sqlStore, err = tasks.OpenSQLite(ctx, dsn)
	case config.StorageMySQL:
		sqlStore, err = tasks.OpenMySQL(ctx, cfg.MySQLDSN)
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownStorage, cfg.Storage)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := sqlStore.ApplyMigrations(ctx); err != nil {
		_ = sqlStore.Close()
		return nil, nil, err
	}
	return sqlStore, func() { _ = sqlStore.Close() }, nil
}

// newRouter wires the health and metrics endpoints, task routes, and middleware stack
func newRouter(store tasks.Store, logger *slog.Logger, cfg config.Config) *chi.Mux {
	r := chi.NewRouter()

	// ---- Middleware stack (order matters) ----
	// RequestID first so downstream can include it (logger, spans, etc.)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	// Panic recovery: never crash the server; returns 500 on panics
	r.Use(chimw.Recoverer)

	// Timeouts: cancel handlers that exceed this duration
	r.Use(chimw.Timeout(15 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "traceparent", "tracestate"},
		ExposedHeaders:   []string{"X-Request-ID", "Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Tracing before logging so log lines carry trace_id.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RateLimitMiddleware(middleware.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)))

	// ---- Routes ----

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	// POST /tasks, GET /tasks, POST /tasks/{index}/complete
	tasks.RegisterRoutes(r, store)

	return r
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
