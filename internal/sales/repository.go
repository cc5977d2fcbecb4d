package sales

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sygep/sygep/internal/notify"
	"github.com/sygep/sygep/internal/platform/db"
)

// TxRepository exposes the mutations available inside a workflow transaction.
// Notification fan-out rides the same transaction as the status change, so a
// rollback removes both.
type TxRepository interface {
	Insert(ctx context.Context, order Order) (int64, error)
	AdvanceStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error)
	InsertNotifications(ctx context.Context, batchID uuid.UUID, batch notify.Batch) (int, error)
}

// Repository provides PostgreSQL backed persistence for sales orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, number, client_id, created_by, amount, status, created_at, prepared_at, ready_at, shipped_at, invoiced_at`

// Get fetches an order by id.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id)
	return scanOrder(row)
}

// ListPending returns orders in the given status, oldest first. Work queues
// are consumed in arrival order.
func (r *Repository) ListPending(ctx context.Context, status Status) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE status = $1 ORDER BY created_at ASC, id ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.Number, &o.ClientID, &o.CreatedBy, &o.Amount, &status, &o.CreatedAt, &o.PreparedAt, &o.ReadyAt, &o.ShippedAt, &o.InvoicedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.Status = Status(status)
	return o, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Insert(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales_orders (number, client_id, created_by, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		order.Number, order.ClientID, order.CreatedBy, order.Amount, string(order.Status), order.CreatedAt).Scan(&id)
	return id, err
}

// AdvanceStatus performs the status-guarded UPDATE. Zero rows affected means
// another transaction moved the order first; the caller maps that to
// ErrInvalidState.
func (t *txRepository) AdvanceStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error) {
	column, ok := stampColumn[to]
	if !ok {
		return false, ErrInvalidState
	}
	tag, err := t.tx.Exec(ctx, `UPDATE sales_orders SET status = $1, `+column+` = $2 WHERE id = $3 AND status = $4`,
		string(to), at, id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) InsertNotifications(ctx context.Context, batchID uuid.UUID, batch notify.Batch) (int, error) {
	return notify.InsertBatchTx(ctx, t.tx, batchID, batch)
}
