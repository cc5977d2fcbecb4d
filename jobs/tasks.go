// Package jobs holds the asynq task definitions and handlers: notification
// e-mail delivery after commit, the nightly unread digest, and the audit-log
// retention sweep.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/sygep/sygep/internal/actors"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyEmail delivers one committed notification batch by e-mail.
	TaskNotifyEmail = "notify:email"
	// TaskNotifyDigest summarises unread notifications per actor.
	TaskNotifyDigest = "notify:digest"
	// TaskAuditCleanup prunes audit entries past the retention window.
	TaskAuditCleanup = "audit:cleanup"
)

// NotifyEmailPayload carries a committed batch to the worker. The rows are
// already in the database; this is delivery only.
type NotifyEmailPayload struct {
	BatchID    uuid.UUID `json:"batch_id"`
	Recipients []int64   `json:"recipients"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
}

// NewNotifyEmailTask constructs the delivery task.
func NewNotifyEmailTask(payload NotifyEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyEmail, data), nil
}

// ActorDirectory resolves recipient ids to actors for e-mail delivery.
type ActorDirectory interface {
	Get(ctx context.Context, id int64) (actors.Actor, error)
	List(ctx context.Context) ([]actors.Actor, error)
}

// UnreadCounter reports unread notifications per actor for the digest.
type UnreadCounter interface {
	CountUnread(ctx context.Context, actorID int64) (int, error)
}

// AuditCleaner prunes old audit entries.
type AuditCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NewNotifyEmailHandler returns the handler for TaskNotifyEmail. Each
// recipient gets one message through the relay; delivery is best effort, a
// failed send is logged and the rest of the batch still goes out.
func NewNotifyEmailHandler(dir ActorDirectory, sender MailSender, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifyEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		for _, id := range payload.Recipients {
			actor, err := dir.Get(ctx, id)
			if err != nil {
				// Deactivated between commit and delivery: skip quietly.
				continue
			}
			if actor.Email == "" {
				continue
			}
			if err := sender.Send(ctx, actor.Email, payload.Title, payload.Message); err != nil {
				logger.Warn("notification mail",
					slog.String("batch_id", payload.BatchID.String()),
					slog.String("to", actor.Email),
					slog.Any("error", err))
				continue
			}
			logger.Info("notification mail",
				slog.String("batch_id", payload.BatchID.String()),
				slog.String("to", actor.Email),
				slog.String("title", payload.Title))
		}
		return nil
	}
}

// NewNotifyDigestHandler returns the cron handler for TaskNotifyDigest.
func NewNotifyDigestHandler(dir ActorDirectory, counter UnreadCounter, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		all, err := dir.List(ctx)
		if err != nil {
			return err
		}
		for _, actor := range all {
			if !actor.IsActive {
				continue
			}
			unread, err := counter.CountUnread(ctx, actor.ID)
			if err != nil {
				logger.Warn("digest count", slog.Int64("actor_id", actor.ID), slog.Any("error", err))
				continue
			}
			if unread == 0 {
				continue
			}
			logger.Info("notification digest",
				slog.String("to", actor.Email),
				slog.Int("unread", unread))
		}
		return nil
	}
}

// NewAuditCleanupHandler returns the cron handler for TaskAuditCleanup.
func NewAuditCleanupHandler(cleaner AuditCleaner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := cleaner.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		logger.Info("audit cleanup", slog.Int64("removed", removed))
		return nil
	}
}
