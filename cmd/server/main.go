/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance and leave ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env, environment and command-line flags
  2. Open the configured store (sqlite, postgres or memory)
  3. Apply the YAML seed, if any
  4. Start the event dispatcher and the carry-over expiry scheduler
  5. Configure the HTTP router and serve

COMMAND-LINE FLAGS:
  --addr               HTTP listen address (default: :8080)
  --store              sqlite, postgres or memory (default: sqlite)
  --db                 SQLite database path (default: ledger.db)
  --database-url       PostgreSQL connection string
  --seed               YAML seed file
  --expiry-interval    Carry-over expiry interval, 0 disables (default: 1h)
  --log-level          debug, info, warn or error
  Every flag has an environment variable counterpart; see config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Stop the scheduler and drain queued events
  4. Close the store

EXAMPLES:
  ./server --db=./data/ledger.db --seed=./seed.yaml
  ./server --store=memory --seed=./seed.yaml --log-level=debug
  STORE_DRIVER=postgres DATABASE_URL=postgres://localhost/ledger ./server

SEE ALSO:
  - config/config.go: Settings
  - api/server.go: Router configuration
*/
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
	_ "time/tzdata"

	"github.com/spf13/pflag"
	"github.com/warp/attendance-ledger/api"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/clock"
	"github.com/warp/attendance-ledger/config"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/notify"
	"github.com/warp/attendance-ledger/store/memory"
	"github.com/warp/attendance-ledger/store/postgres"
	"github.com/warp/attendance-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
	cfg.BindFlags(fs)
	fs.Parse(os.Args[1:])
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("store ready", "driver", cfg.StoreDriver)

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		n, err := seed.Apply(ctx, store)
		if err != nil {
			return err
		}
		logger.Info("seed applied", "file", cfg.SeedFile, "records", n)
	}

	// Events
	dispatcher := notify.NewDispatcher(cfg.EventBuffer, logger, notify.NewLogSink(logger))
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Stop()

	// Engines
	clk := clock.Real()
	l := ledger.New(store, clk, dispatcher, logger)
	att := attendance.New(store, clk, dispatcher, logger)
	att.StrictWorkingDays = cfg.StrictWorkingDays
	leaves := leave.New(store, l, clk, dispatcher, logger)

	scheduler := api.NewExpiryScheduler(l, clk, logger)
	scheduler.CheckInterval = cfg.ExpiryCheckInterval
	scheduler.Enabled = cfg.ExpiryCheckInterval > 0
	scheduler.Start(ctx)
	defer scheduler.Stop()

	handler := api.NewHandler(store, att, leaves, l, clk, logger)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.CORSOrigins})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (domain.TxStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, postgres.Options{MaxConns: 10, MaxConnLifetime: time.Hour})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, func() { s.Close() }, nil
	case config.DriverMemory:
		return memory.New(), func() {}, nil
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, func() { s.Close() }, nil
	}
}
