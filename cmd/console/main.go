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

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/app"
	"github.com/deliverly/admin-console/internal/console"
	"github.com/deliverly/admin-console/internal/observability"
	"github.com/deliverly/admin-console/internal/platform/cache"
	"github.com/deliverly/admin-console/internal/shared"
	"github.com/deliverly/admin-console/jobs"
	"github.com/deliverly/admin-console/report"
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

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "console_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	api := apiclient.NewClient(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.APITimeout,
	}, apiclient.WithLogger(logger), apiclient.WithObserver(metrics))

	settings := console.Settings{
		SearchDelay:     cfg.SearchDebounce,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}
	registry := console.NewRegistry(func(sessionID string, admin shared.AdminUser, token string) *console.Workspace {
		return console.NewWorkspace(sessionID, admin, token, api, settings, logger, metrics)
	}, cfg.WorkspaceIdleTTL, logger)
	go registry.Run(ctx)

	redisOpts := jobs.RedisOpt(redisClient.Options())
	bulkQueue := jobs.NewClient(redisOpts, jobs.NewResultStore(redisClient, cfg.BulkResultTTL))
	defer func() {
		if err := bulkQueue.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	reportClient := report.NewClient(cfg.GotenbergURL)

	consoleHandler := console.NewHandler(console.HandlerConfig{
		API:      api,
		Registry: registry,
		Sessions: sessionManager,
		CSRF:     csrfManager,
		Bulk:     bulkQueue,
		Reports:  reportClient,
		Logger:   logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		ConsoleHandler: consoleHandler,
		ReportHandler:  report.NewHandler(reportClient, logger),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
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
	registry.Close()
}
