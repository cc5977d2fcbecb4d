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

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/app"
	"github.com/sygep/sygep/internal/audit"
	"github.com/sygep/sygep/internal/billing"
	"github.com/sygep/sygep/internal/masterdata"
	"github.com/sygep/sygep/internal/notify"
	"github.com/sygep/sygep/internal/observability"
	"github.com/sygep/sygep/internal/platform/cache"
	"github.com/sygep/sygep/internal/platform/db"
	"github.com/sygep/sygep/internal/purchasing"
	"github.com/sygep/sygep/internal/sales"
	"github.com/sygep/sygep/internal/shared"
	"github.com/sygep/sygep/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Listings degrade to uncached reads without Redis.
		logger.Warn("redis connect", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}
	readCache := cache.NewCache(redisClient, cfg.CacheTTL)
	if err := readCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(pool)

	actorRepo := actors.NewRepository(pool)
	permRepo := access.NewRepository(pool)
	policy := access.NewPolicy(permRepo)
	accessMW := access.Middleware{Policy: policy, Logger: logger}

	asynqClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	mailer := jobs.NewMailer(asynqClient)

	notifyRepo := notify.NewRepository(pool)
	notifyService := notify.NewService(notifyRepo, mailer, logger)
	notifyHandler := notify.NewHandler(logger, notifyService)

	masterdataRepo := masterdata.NewRepository(pool)
	masterdataHandler := masterdata.NewHandler(logger, masterdataRepo, accessMW)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, masterdataRepo, actorRepo, policy, auditLogger, notifyService, readCache, logger)
	salesHandler := sales.NewHandler(salesService, accessMW)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, masterdataRepo, actorRepo, policy, auditLogger, notifyService, readCache, logger)
	purchasingHandler := purchasing.NewHandler(purchasingService, accessMW)

	billingCoordinator := billing.NewCoordinator(salesService, purchasingService, auditLogger, readCache, logger)
	billingHandler := billing.NewHandler(billingCoordinator, accessMW)

	auditService := audit.NewService(pool)
	auditHandler := audit.NewHandler(auditService, accessMW)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterConfig{
		Middlewares: app.MiddlewareStack(app.MiddlewareConfig{
			Logger:  logger,
			Config:  cfg,
			Actors:  actorRepo,
			Metrics: metrics,
		}),
		AccessMW:      accessMW,
		Metrics:       metrics,
		Masterdata:    masterdataHandler,
		Sales:         salesHandler,
		Purchasing:    purchasingHandler,
		Billing:       billingHandler,
		Notifications: notifyHandler,
		Audit:         auditHandler,
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
