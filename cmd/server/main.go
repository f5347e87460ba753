package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/lqe/internal/api"
	"github.com/Harshitk-cp/lqe/internal/config"
	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/logging"
	"github.com/Harshitk-cp/lqe/internal/metrics"
	"github.com/Harshitk-cp/lqe/internal/store"
	"github.com/Harshitk-cp/lqe/internal/store/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type backend struct {
	db      api.Pinger
	tenants domain.TenantStore
	signals domain.SignalStore
	close   func()
}

func main() {
	cfgErr := config.Load()

	logger, err := logging.New(config.LogLevel())
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("invalid log config, using defaults", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if cfgErr != nil {
		logger.Fatal("failed to load config", zap.Error(cfgErr))
	}

	ctx := context.Background()

	b, err := openBackend(ctx, config.StoreDriver())
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", config.StoreDriver()), zap.Error(err))
	}
	defer b.close()
	logger.Info("store ready", zap.String("driver", config.StoreDriver()))

	m, err := metrics.NewDefault()
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	app := api.NewApp(api.Deps{
		Store:                  b.db,
		Tenants:                b.tenants,
		Signals:                b.signals,
		Metrics:                m,
		Logger:                 logger,
		RateLimitRPS:           config.RateLimitRPS(),
		RateLimitBurst:         config.RateLimitBurst(),
		MaxBatchObservations:   config.MaxBatchObservations(),
		RejectNegativeVariance: config.RejectNegativeVariance(),
		SignalRetention:        config.SignalRetention(),
		ExpirerInterval:        config.ExpirerInterval(),
	})
	defer app.Close()

	// Start background services
	app.Expirer.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Expirer.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openBackend(ctx context.Context, driver string) (*backend, error) {
	switch driver {
	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return &backend{
			db:      pool,
			tenants: store.NewTenantStore(pool),
			signals: store.NewSignalStore(pool),
			close:   pool.Close,
		}, nil

	case "sqlite":
		db, err := sqlite.Open(config.SQLitePath())
		if err != nil {
			return nil, err
		}
		return &backend{
			db:      db,
			tenants: db.Tenants(),
			signals: db.Signals(),
			close:   func() { _ = db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
