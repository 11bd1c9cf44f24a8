/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the salon commission and payables server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.toml, .env, SALON_* variables)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Pick the approval locker (Redis when redis.addr is set)
  5. Create API handler, overdue scheduler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  directory holding config.toml (default: .)
  -port    overrides app.port
  -db      overrides database.path; ":memory:" for a throwaway database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the overdue scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - config/config.go: configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/salon-ledger/api"
	"github.com/warp/salon-ledger/config"
	"github.com/warp/salon-ledger/lock"
	"github.com/warp/salon-ledger/logger"
	"github.com/warp/salon-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configDir := flag.String("config", ".", "directory holding config.toml")
	port := flag.Int("port", 0, "HTTP server port (overrides app.port)")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *port != 0 {
		cfg.App.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	locker, closeLocker, err := newLocker(cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	handler := api.NewHandler(store, api.Options{
		Locker:        locker,
		Logger:        log,
		DefaultPayDay: cfg.Commission.DefaultPayDay,
	})

	scheduler := api.NewOverdueScheduler(handler.Payables, log.Named("scheduler"))
	scheduler.Enabled = cfg.Scheduler.OverdueEnabled
	scheduler.CheckInterval = cfg.Scheduler.OverdueInterval
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.HTTP.CORSAllowOrigins})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Path),
			zap.Bool("redis_lock", cfg.Redis.Enabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// newLocker returns the Redis locker when configured, otherwise an
// in-process keyed mutex.
func newLocker(cfg *config.Config, log *zap.Logger) (lock.Locker, func(), error) {
	if !cfg.Redis.Enabled() {
		return lock.NewKeyed(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}

	log.Info("using redis approval lock", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Lock.TTL))
	return lock.NewRedis(rdb, cfg.Lock.TTL), func() { rdb.Close() }, nil
}
