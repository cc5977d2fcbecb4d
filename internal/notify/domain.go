// Package notify persists and serves per-user notifications tied to workflow
// entities. Fan-out happens in the same database transaction as the workflow
// transition that caused it.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sygep/sygep/internal/shared"
)

// RefType names the workflow entity a notification points at.
type RefType string

const (
	RefSalesOrder    RefType = "sales_order"
	RefPurchaseOrder RefType = "purchase_order"
)

// Notification is a single per-recipient row. Only the recipient flips the
// read flag, and it never regresses to unread.
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	BatchID     uuid.UUID `json:"batch_id"`
	RefID       int64     `json:"ref_id"`
	RefType     RefType   `json:"ref_type"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
	ReadAt      time.Time `json:"read_at,omitempty"`
}

// Batch is one logical fan-out: the same title and message delivered to a set
// of recipients. Non-positive recipient ids are dropped and duplicates
// collapse to one row.
type Batch struct {
	Recipients []int64
	Title      string
	Message    string
	RefID      int64
	RefType    RefType
}

// CleanRecipients returns the deduplicated recipients with empty slots
// removed, preserving first-seen order.
func (b Batch) CleanRecipients() []int64 {
	seen := make(map[int64]struct{}, len(b.Recipients))
	out := make([]int64, 0, len(b.Recipients))
	for _, id := range b.Recipients {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var (
	// ErrNotFound indicates the notification does not exist.
	ErrNotFound = fmt.Errorf("notify: %w", shared.ErrNotFound)
	// ErrValidation indicates a malformed batch.
	ErrValidation = fmt.Errorf("notify: %w", shared.ErrValidation)
)
