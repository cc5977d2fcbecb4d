package access

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sygep/sygep/internal/actors"
)

// Repository reads permission entries from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lookup returns the permission entry for (role, module). A missing row is
// not an error: it returns the zero Permission, which denies everything.
func (r *Repository) Lookup(ctx context.Context, role actors.Role, module Module) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT can_read, can_write FROM role_permissions WHERE role = $1 AND module = $2`, string(role), string(module))
	var p Permission
	if err := row.Scan(&p.CanRead, &p.CanWrite); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, nil
		}
		return Permission{}, err
	}
	return p, nil
}
