// Package purchasing implements the purchase-order lifecycle: NEW, ORDERED,
// RECEIVED, PAID, strictly forward. Reception is the sensitive step: the
// status change, the stock increments and the movement records commit in one
// transaction or not at all.
package purchasing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sygep/sygep/internal/shared"
)

// Status of a purchase order.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusOrdered  Status = "ORDERED"
	StatusReceived Status = "RECEIVED"
	StatusPaid     Status = "PAID"
)

// Valid reports whether the status is one of the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusOrdered, StatusReceived, StatusPaid:
		return true
	}
	return false
}

// transitions is the single authority on the forward-only chain. Each status
// has exactly one successor; PAID is terminal.
var transitions = map[Status]Status{
	StatusNew:      StatusOrdered,
	StatusOrdered:  StatusReceived,
	StatusReceived: StatusPaid,
}

// CanTransition reports whether from may advance directly to to.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// Purchase is a purchase order header.
type Purchase struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	SupplierID   int64      `json:"supplier_id"`
	CreatedBy    int64      `json:"created_by"`
	Amount       float64    `json:"amount"`
	Status       Status     `json:"status"`
	DeliveryNote string     `json:"delivery_note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ValidatedAt  *time.Time `json:"validated_at,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

// Line is one ordered product with its quantity.
type Line struct {
	ID         int64   `json:"id"`
	PurchaseID int64   `json:"purchase_id"`
	ProductID  int64   `json:"product_id"`
	Qty        float64 `json:"qty"`
}

// StockMovement is the append-only trace of one received line.
type StockMovement struct {
	PurchaseID int64
	ProductID  int64
	Qty        float64
	Ref        uuid.UUID
}

var (
	// ErrNotFound indicates the purchase does not exist.
	ErrNotFound = fmt.Errorf("purchasing: %w", shared.ErrNotFound)
	// ErrValidation indicates a malformed input.
	ErrValidation = fmt.Errorf("purchasing: %w", shared.ErrValidation)
	// ErrInvalidState indicates the purchase is not in the status the
	// transition requires.
	ErrInvalidState = fmt.Errorf("purchasing: %w", shared.ErrInvalidState)
)
