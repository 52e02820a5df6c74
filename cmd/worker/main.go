package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

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
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	costingRepo := costing.NewRepository(pool)
	costingService := costing.NewService(costingRepo, logger, metrics)

	// The worker is the only forward-recompute runner; no cascade enqueuer is
	// wired so a chain rebuilt here cannot schedule itself again.
	receivableRepo := receivable.NewRepository(pool)
	receivableService := receivable.NewService(receivableRepo, locks, nil, logger, metrics)

	valuationCache := valuation.NewCache(redisClient, cfg.ValuationCacheTTL)
	valuationService := valuation.NewService(costingService, valuationCache, logger)

	snapshotTask, err := jobs.NewValuationSnapshotTask(jobs.ValuationSnapshotPayload{})
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReceivableCascade, Handler: jobs.NewReceivableCascadeHandler(receivableService, idempotencyStore, logger)},
			{Type: jobs.TaskValuationSnapshot, Handler: jobs.NewValuationSnapshotHandler(valuationService, pool, logger)},
			{Type: jobs.TaskIdempotencySweep, Handler: jobs.NewIdempotencySweepHandler(idempotencyStore, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: snapshotTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 3 * * *", Task: jobs.NewIdempotencySweepTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
