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
	"github.com/hadmean/hadmean/internal/auth"
	"github.com/hadmean/hadmean/internal/credentials"
	"github.com/hadmean/hadmean/internal/entities"
	"github.com/hadmean/hadmean/internal/identity"
	"github.com/hadmean/hadmean/internal/observability"
	"github.com/hadmean/hadmean/internal/platform/cache"
	"github.com/hadmean/hadmean/internal/platform/db"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
	"github.com/hadmean/hadmean/internal/roles"
	"github.com/hadmean/hadmean/internal/schemaform"
	"github.com/hadmean/hadmean/internal/shared"
	"github.com/hadmean/hadmean/internal/storage"
	"github.com/hadmean/hadmean/internal/users"
	usershttp "github.com/hadmean/hadmean/internal/users/http"
	"github.com/hadmean/hadmean/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "hadmean_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	usersService := users.NewService(users.NewRepository(dbpool))
	rbacService := rbac.NewService(rbac.NewRepository(dbpool))
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(usersService, tokens)

	entitiesService := entities.NewService(
		entities.NewSchemaRepository(dbpool, cfg.DBSchema),
		entities.NewAppConfigRepository(dbpool),
	)

	pipeline := request.NewPipeline(request.Config{
		Resolver: identity.NewResolver(tokens, usersService, rbacService),
		Rules:    request.DefaultRules(entitiesService),
		Checker:  request.NewChecker(cfg.AppPasswordHash),
		Logger:   logger,
		Failures: metrics,
	})

	cipher, err := credentials.NewCipher(cfg.CredentialsSecret)
	if err != nil {
		logger.Error("init credentials cipher", slog.Any("error", err))
		os.Exit(1)
	}
	credentialsService := credentials.NewService(credentials.NewRepository(dbpool), cipher, auditLogger)

	compiler := schemaform.NewCompiler(language.English)
	registry, err := actions.NewRegistry(compiler, integrations.All(integrations.NewClient(cfg.IntegrationTimeout))...)
	if err != nil {
		logger.Error("init action registry", slog.Any("error", err))
		os.Exit(1)
	}
	storageService, err := storage.NewService(credentialsService.WithGroup("storage"), compiler, storage.Providers()...)
	if err != nil {
		logger.Error("init storage providers", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	actionsService := actions.NewService(actions.ServiceParams{
		Repo:     actions.NewRepository(dbpool),
		Registry: registry,
		Sealer:   cipher,
		Queue:    jobsClient,
		Metrics:  metrics,
		Audit:    auditLogger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        auth.NewHandler(pipeline, authService, sessionManager, csrfManager),
		UsersHandler:       usershttp.NewHandler(pipeline, usersService),
		RolesHandler:       roles.NewHandler(pipeline, rbacService),
		EntitiesHandler:    entities.NewHandler(pipeline, entitiesService),
		CredentialsHandler: credentials.NewHandler(pipeline, credentialsService),
		ActionsHandler:     actions.NewHandler(pipeline, actionsService),
		StorageHandler:     storage.NewHandler(pipeline, storageService),
		JobHandler:         jobs.NewHandler(pipeline, inspector, logger),
		Metrics:            metrics,
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
