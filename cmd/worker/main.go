package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/app"
	jobmetrics "github.com/deliverly/admin-console/internal/jobs"
	"github.com/deliverly/admin-console/internal/platform/cache"
	"github.com/deliverly/admin-console/jobs"
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
	slog.SetDefault(logger)

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

	// The worker acts with the service key only; attribution travels in
	// each task payload.
	api := apiclient.NewClient(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.APITimeout,
	}, apiclient.WithLogger(logger))

	bulkJob := jobs.NewBulkActionJob(api,
		jobs.NewResultStore(redisClient, cfg.BulkResultTTL),
		logger,
		jobmetrics.NewMetrics(nil),
		cfg.BulkConcurrency)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: jobs.RedisOpt(redisClient.Options()),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBulkAction, Handler: bulkJob.Handle},
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
