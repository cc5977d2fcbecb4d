package purchasing

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
type TxRepository interface {
	Insert(ctx context.Context, purchase Purchase) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	AdvanceStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error)
	MarkReceived(ctx context.Context, id int64, deliveryNote string, at time.Time) (bool, error)
	IncrementStock(ctx context.Context, productID int64, qty float64) error
	InsertStockMovement(ctx context.Context, movement StockMovement) error
	InsertNotifications(ctx context.Context, batchID uuid.UUID, batch notify.Batch) (int, error)
}

// Repository provides PostgreSQL backed persistence for purchase orders.
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

const purchaseColumns = `id, number, supplier_id, created_by, amount, status, COALESCE(delivery_note, ''), created_at, validated_at, received_at, paid_at`

// Get fetches a purchase by id.
func (r *Repository) Get(ctx context.Context, id int64) (Purchase, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchase_orders WHERE id = $1`, id)
	return scanPurchase(row)
}

// Lines returns the line items of a purchase.
func (r *Repository) Lines(ctx context.Context, purchaseID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_id, product_id, qty FROM purchase_lines WHERE purchase_id = $1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.ProductID, &line.Qty); err != nil {
			return nil, err
		}
		result = append(result, line)
	}
	return result, rows.Err()
}

// ListPending returns purchases in the given status, oldest first.
func (r *Repository) ListPending(ctx context.Context, status Status) ([]Purchase, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+purchaseColumns+` FROM purchase_orders WHERE status = $1 ORDER BY created_at ASC, id ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, purchase)
	}
	return result, rows.Err()
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	var status string
	err := row.Scan(&p.ID, &p.Number, &p.SupplierID, &p.CreatedBy, &p.Amount, &status, &p.DeliveryNote, &p.CreatedAt, &p.ValidatedAt, &p.ReceivedAt, &p.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, err
	}
	p.Status = Status(status)
	return p, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Insert(ctx context.Context, purchase Purchase) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, created_by, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		purchase.Number, purchase.SupplierID, purchase.CreatedBy, purchase.Amount, string(purchase.Status), purchase.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_lines (purchase_id, product_id, qty) VALUES ($1, $2, $3)`,
		line.PurchaseID, line.ProductID, line.Qty)
	return err
}

// AdvanceStatus performs the status-guarded UPDATE for validation and payment.
// Reception goes through MarkReceived because it also records the delivery
// note.
func (t *txRepository) AdvanceStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error) {
	var column string
	switch to {
	case StatusOrdered:
		column = "validated_at"
	case StatusPaid:
		column = "paid_at"
	default:
		return false, ErrInvalidState
	}
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $1, `+column+` = $2 WHERE id = $3 AND status = $4`,
		string(to), at, id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) MarkReceived(ctx context.Context, id int64, deliveryNote string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $1, received_at = $2, delivery_note = $3 WHERE id = $4 AND status = $5`,
		string(StatusReceived), at, deliveryNote, id, string(StatusOrdered))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) IncrementStock(ctx context.Context, productID int64, qty float64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock + $1 WHERE id = $2`, qty, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertStockMovement(ctx context.Context, movement StockMovement) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_movements (purchase_id, product_id, qty, ref, created_at) VALUES ($1, $2, $3, $4, NOW())`,
		movement.PurchaseID, movement.ProductID, movement.Qty, movement.Ref)
	return err
}

func (t *txRepository) InsertNotifications(ctx context.Context, batchID uuid.UUID, batch notify.Batch) (int, error) {
	return notify.InsertBatchTx(ctx, t.tx, batchID, batch)
}
