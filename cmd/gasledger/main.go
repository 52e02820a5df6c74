package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gasledger/gasledger/internal/app"
	"github.com/gasledger/gasledger/internal/costing"
	"github.com/gasledger/gasledger/internal/observability"
	"github.com/gasledger/gasledger/internal/platform/cache"
	"github.com/gasledger/gasledger/internal/platform/db"
	"github.com/gasledger/gasledger/internal/receivable"
	"github.com/gasledger/gasledger/internal/shared"
	"github.com/gasledger/gasledger/internal/valuation"
	"github.com/gasledger/gasledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	locks := shared.NewLocks(redisClient, cfg.LockTTL)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	cascadeEnqueuer := jobs.NewCascadeEnqueuer(jobClient, idempotencyStore, logger)
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	costingRepo := costing.NewRepository(pool)
	costingService := costing.NewService(costingRepo, logger, metrics)
	costingHandler := costing.NewHandler(logger, costingService)

	receivableRepo := receivable.NewRepository(pool)
	receivableService := receivable.NewService(receivableRepo, locks, cascadeEnqueuer, logger, metrics)
	receivableHandler := receivable.NewHandler(logger, receivableService)

	valuationCache := valuation.NewCache(redisClient, cfg.ValuationCacheTTL)
	valuationService := valuation.NewService(costingService, valuationCache, logger)
	valuationHandler := valuation.NewHandler(logger, valuationService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CostingHandler:    costingHandler,
		ReceivableHandler: receivableHandler,
		ValuationHandler:  valuationHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
