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
	"golang.org/x/text/language"

	"github.com/hadmean/hadmean/internal/actions"
	"github.com/hadmean/hadmean/internal/actions/integrations"
	"github.com/hadmean/hadmean/internal/app"
	"github.com/hadmean/hadmean/internal/credentials"
	jobmetrics "github.com/hadmean/hadmean/internal/jobs"
	"github.com/hadmean/hadmean/internal/observability"
	"github.com/hadmean/hadmean/internal/platform/db"
	"github.com/hadmean/hadmean/internal/schemaform"
	"github.com/hadmean/hadmean/internal/shared"
	"github.com/hadmean/hadmean/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	cipher, err := credentials.NewCipher(cfg.CredentialsSecret)
	if err != nil {
		logger.Error("init credentials cipher", slog.Any("error", err))
		os.Exit(1)
	}
	registry, err := actions.NewRegistry(schemaform.NewCompiler(language.English), integrations.All(integrations.NewClient(cfg.IntegrationTimeout))...)
	if err != nil {
		logger.Error("init action registry", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	actionsService := actions.NewService(actions.ServiceParams{
		Repo:     actions.NewRepository(pool),
		Registry: registry,
		Sealer:   cipher,
		Metrics:  metrics,
		Audit:    shared.NewAuditLogger(pool),
	})
	runJob := jobs.NewActionRunJob(actionsService, logger, jobmetrics.NewMetrics(metrics.Registerer()))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskActionPerform, Handler: runJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
