package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/corefin/corefin/internal/app"
	"github.com/corefin/corefin/internal/billing"
	jobmetrics "github.com/corefin/corefin/internal/jobs"
	"github.com/corefin/corefin/internal/ledger/accounts"
	"github.com/corefin/corefin/internal/ledger/balance"
	"github.com/corefin/corefin/internal/ledger/journal"
	"github.com/corefin/corefin/internal/ledger/store"
	"github.com/corefin/corefin/internal/metering"
	"github.com/corefin/corefin/internal/observability"
	"github.com/corefin/corefin/internal/platform/cache"
	"github.com/corefin/corefin/internal/platform/db"
	"github.com/corefin/corefin/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
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
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	accountRepo := accounts.NewRepository(pool)
	accountService := accounts.NewService(accountRepo)
	ledgerReader := store.NewReader(pool)
	balanceCache := balance.NewCache(redisClient, cfg.BalanceCacheTTL)
	balanceService := balance.NewService(ledgerReader, accountService, balanceCache)
	journalRepo := journal.NewRepository(pool)
	journalService := journal.NewService(journalRepo, balanceCache)
	journalService.WithMetrics(metrics)
	meterRepo := metering.NewRepository(pool)
	meterService := metering.NewService(meterRepo)
	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, meterService, journalService, logger)
	billingService.WithConcurrency(cfg.BillingConcurrency)

	billingJob := jobs.NewBillingRunJob(billingService, logger, jobMetrics)
	trialBalanceJob := jobs.NewTrialBalanceCheckJob(balanceService, pool, logger, jobMetrics)

	billingTask, err := jobs.NewBillingRunTask(jobs.BillingRunPayload{})
	if err != nil {
		logger.Error("build billing task", slog.Any("error", err))
		os.Exit(1)
	}
	trialBalanceTask, err := jobs.NewTrialBalanceCheckTask(jobs.TrialBalanceCheckPayload{})
	if err != nil {
		logger.Error("build trial balance task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeBillingRun, Handler: billingJob.Handle},
			{Type: jobs.TaskTypeTrialBalanceCheck, Handler: trialBalanceJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BillingCron, Task: billingTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 4 * * *", Task: trialBalanceTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	opsServer := newOpsServer(cfg, metrics, jobs.NewHandler(inspector, logger))
	go func() {
		logger.Info("ops endpoint listening", slog.String("addr", cfg.OpsAddr))
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server", slog.Any("error", err))
		}
	}()
	defer func() {
		if err := opsServer.Shutdown(context.Background()); err != nil {
			logger.Warn("ops shutdown", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func newOpsServer(cfg *app.Config, metrics *observability.Metrics, jobsHandler *jobs.Handler) *http.Server {
	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	jobsHandler.MountRoutes(router)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	return &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      router,
		ReadTimeout:  cfg.OpsReadTimeout,
		WriteTimeout: cfg.OpsWriteTimeout,
	}
}
