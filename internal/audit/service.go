// Package audit reads the append-only audit trail back for the administration
// module. Writing happens through shared.AuditLogger; this package only
// queries.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit record as served to administrators.
type Entry struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Filter narrows the timeline. Zero values mean no constraint.
type Filter struct {
	Entity  string
	ActorID int64
	Limit   int
	Offset  int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Service reads audit entries.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs the audit read service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Timeline returns audit entries newest first.
func (s *Service) Timeline(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx, `SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
		FROM audit_logs
		WHERE ($1 = '' OR entity = $1) AND ($2 = 0 OR actor_id = $2)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3 OFFSET $4`, filter.Entity, filter.ActorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
