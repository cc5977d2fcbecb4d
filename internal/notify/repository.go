package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sygep/sygep/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed persistence for notifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertBatch writes one row per cleaned recipient inside its own
// transaction. Either every recipient gets a row or none do.
func (r *Repository) InsertBatch(ctx context.Context, batchID uuid.UUID, batch Batch) (int, error) {
	var inserted int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		n, err := insertBatch(ctx, tx, batchID, batch)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// InsertBatchTx writes the batch using a caller-owned transaction, so the
// fan-out commits together with the workflow transition that triggered it.
func InsertBatchTx(ctx context.Context, tx pgx.Tx, batchID uuid.UUID, batch Batch) (int, error) {
	return insertBatch(ctx, tx, batchID, batch)
}

func insertBatch(ctx context.Context, tx dbtx, batchID uuid.UUID, batch Batch) (int, error) {
	recipients := batch.CleanRecipients()
	for _, id := range recipients {
		_, err := tx.Exec(ctx, `INSERT INTO notifications (recipient_id, title, message, batch_id, ref_id, ref_type, read, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())`,
			id, batch.Title, batch.Message, batchID, batch.RefID, string(batch.RefType))
		if err != nil {
			return 0, err
		}
	}
	return len(recipients), nil
}

// ListUnread returns unread notifications for the actor, newest first.
func (r *Repository) ListUnread(ctx context.Context, actorID int64) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, recipient_id, title, message, batch_id, ref_id, ref_type, read, created_at, COALESCE(read_at, 'epoch'::timestamptz)
		FROM notifications WHERE recipient_id = $1 AND NOT read ORDER BY created_at DESC, id DESC`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var n Notification
		var refType string
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.BatchID, &n.RefID, &refType, &n.Read, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		n.RefType = RefType(refType)
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountUnread returns the number of unread notifications for the actor.
func (r *Repository) CountUnread(ctx context.Context, actorID int64) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, actorID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead flips the read flag for the recipient's notification. The guarded
// UPDATE only touches unread rows; marking twice changes nothing. Returns
// whether the notification exists for that recipient.
func (r *Repository) MarkRead(ctx context.Context, actorID, notificationID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE, read_at = NOW() WHERE id = $1 AND recipient_id = $2 AND NOT read`, notificationID, actorID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND recipient_id = $2)`, notificationID, actorID).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	return exists, nil
}
