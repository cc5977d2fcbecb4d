package actors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sygep/sygep/internal/shared"
)

// ErrNotFound indicates the actor does not exist or is inactive.
var ErrNotFound = fmt.Errorf("actors: %w", shared.ErrNotFound)

// Repository provides PostgreSQL backed actor lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns an active actor by id.
func (r *Repository) Get(ctx context.Context, id int64) (Actor, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, email, role, is_active, created_at FROM actors WHERE id = $1 AND is_active`, id)
	var a Actor
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.IsActive, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, err
	}
	return a, nil
}

// WithRoles returns all active actors holding any of the given roles. The
// query runs at call time, so recipients added after deployment are picked up
// without code change.
func (r *Repository) WithRoles(ctx context.Context, roles ...Role) ([]Actor, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, role, is_active, created_at FROM actors WHERE is_active AND role = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Actor
	for rows.Next() {
		var a Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// List returns all actors ordered by name.
func (r *Repository) List(ctx context.Context) ([]Actor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, role, is_active, created_at FROM actors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Actor
	for rows.Next() {
		var a Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
