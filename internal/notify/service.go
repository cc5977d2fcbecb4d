package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	InsertBatch(ctx context.Context, batchID uuid.UUID, batch Batch) (int, error)
	ListUnread(ctx context.Context, actorID int64) ([]Notification, error)
	CountUnread(ctx context.Context, actorID int64) (int, error)
	MarkRead(ctx context.Context, actorID, notificationID int64) (bool, error)
}

// Mailer delivers a committed batch out of band (e-mail, chat relay). Delivery
// is best effort and never blocks or fails the workflow that produced the
// batch.
type Mailer interface {
	EnqueueBatch(ctx context.Context, batchID uuid.UUID, batch Batch) error
}

// Service coordinates notification persistence and reads.
type Service struct {
	repo   RepositoryPort
	mailer Mailer
	logger *slog.Logger
}

// NewService constructs the notification service. The mailer is optional.
func NewService(repo RepositoryPort, mailer Mailer, logger *slog.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, logger: logger}
}

// Notify fans the batch out to every resolved recipient as a single atomic
// insert. An empty recipient set (after cleaning) is a no-op.
func (s *Service) Notify(ctx context.Context, batch Batch) (int, error) {
	if batch.Title == "" {
		return 0, fmt.Errorf("%w: title required", ErrValidation)
	}
	if len(batch.CleanRecipients()) == 0 {
		return 0, nil
	}
	batchID := uuid.New()
	inserted, err := s.repo.InsertBatch(ctx, batchID, batch)
	if err != nil {
		return 0, err
	}
	s.AfterCommit(ctx, batchID, batch)
	return inserted, nil
}

// AfterCommit hands a committed batch to the mailer. Workflow services call
// this once their own transaction, which inserted the rows, has committed.
func (s *Service) AfterCommit(ctx context.Context, batchID uuid.UUID, batch Batch) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.EnqueueBatch(ctx, batchID, batch); err != nil && s.logger != nil {
		s.logger.Warn("enqueue notification mail", slog.String("batch_id", batchID.String()), slog.Any("error", err))
	}
}

// ListUnread returns unread notifications for the actor, newest first.
func (s *Service) ListUnread(ctx context.Context, actorID int64) ([]Notification, error) {
	return s.repo.ListUnread(ctx, actorID)
}

// CountUnread returns the unread count for the actor.
func (s *Service) CountUnread(ctx context.Context, actorID int64) (int, error) {
	return s.repo.CountUnread(ctx, actorID)
}

// MarkRead marks the recipient's notification as read. Marking an already
// read notification is a no-op; an unknown id is ErrNotFound.
func (s *Service) MarkRead(ctx context.Context, actorID, notificationID int64) error {
	exists, err := s.repo.MarkRead(ctx, actorID, notificationID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
