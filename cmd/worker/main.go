package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/app"
	"github.com/sygep/sygep/internal/notify"
	"github.com/sygep/sygep/internal/platform/db"
	"github.com/sygep/sygep/internal/shared"
	"github.com/sygep/sygep/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	actorRepo := actors.NewRepository(pool)
	notifyRepo := notify.NewRepository(pool)
	auditLogger := shared.NewAuditLogger(pool)

	sender := &jobs.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}

	digestTask := asynq.NewTask(jobs.TaskNotifyDigest, nil)
	cleanupTask := asynq.NewTask(jobs.TaskAuditCleanup, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotifyEmail, Handler: jobs.NewNotifyEmailHandler(actorRepo, sender, logger)},
			{Type: jobs.TaskNotifyDigest, Handler: jobs.NewNotifyDigestHandler(actorRepo, notifyRepo, logger)},
			{Type: jobs.TaskAuditCleanup, Handler: jobs.NewAuditCleanupHandler(auditLogger, cfg.AuditRetention, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DigestCron, Task: digestTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
