package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed masterdata lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetClient fetches a client by id.
func (r *Repository) GetClient(ctx context.Context, id int64) (Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), created_at FROM clients WHERE id = $1`, id)
	var c Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, err
	}
	return c, nil
}

// ClientExists reports whether the client id references a stored client.
func (r *Repository) ClientExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// ListClients returns all clients ordered by name.
func (r *Repository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), created_at FROM clients ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// GetSupplier fetches a supplier by id.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), created_at FROM suppliers WHERE id = $1`, id)
	var s Supplier
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Address, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}

// SupplierExists reports whether the supplier id references a stored supplier.
func (r *Repository) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// ListSuppliers returns all suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), created_at FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Address, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetProduct fetches a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, reference, name, price, stock, stock_alert, created_at FROM products WHERE id = $1`, id)
	var p Product
	if err := row.Scan(&p.ID, &p.Reference, &p.Name, &p.Price, &p.Stock, &p.StockAlert, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListProducts returns all products ordered by name.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	return r.listProducts(ctx, `SELECT id, reference, name, price, stock, stock_alert, created_at FROM products ORDER BY name`)
}

// ListLowStock returns products at or below their alert threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	return r.listProducts(ctx, `SELECT id, reference, name, price, stock, stock_alert, created_at FROM products WHERE stock <= stock_alert ORDER BY stock ASC, name`)
}

func (r *Repository) listProducts(ctx context.Context, query string) ([]Product, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Reference, &p.Name, &p.Price, &p.Stock, &p.StockAlert, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
