// Package sales implements the sales-order lifecycle: an order moves forward
// through NEW, READY_TO_PREPARE, READY_TO_SHIP, SHIPPED and INVOICED, never
// backwards, and every transition fans notifications out to the roles that
// must act next.
package sales

import (
	"fmt"
	"time"

	"github.com/sygep/sygep/internal/shared"
)

// Status of a sales order.
type Status string

const (
	StatusNew            Status = "NEW"
	StatusReadyToPrepare Status = "READY_TO_PREPARE"
	StatusReadyToShip    Status = "READY_TO_SHIP"
	StatusShipped        Status = "SHIPPED"
	StatusInvoiced       Status = "INVOICED"
)

// Valid reports whether the status is one of the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusReadyToPrepare, StatusReadyToShip, StatusShipped, StatusInvoiced:
		return true
	}
	return false
}

// transitions maps each status to its only allowed successor. The chain is
// strictly linear; anything else is ErrInvalidState.
var transitions = map[Status]Status{
	StatusNew:            StatusReadyToPrepare,
	StatusReadyToPrepare: StatusReadyToShip,
	StatusReadyToShip:    StatusShipped,
	StatusShipped:        StatusInvoiced,
}

// CanTransition reports whether from may advance directly to to.
func CanTransition(from, to Status) bool {
	return transitions[from] == to
}

// stampColumn names the timestamp column set when entering a status. Each is
// written exactly once, by the transition that reaches it.
var stampColumn = map[Status]string{
	StatusReadyToPrepare: "prepared_at",
	StatusReadyToShip:    "ready_at",
	StatusShipped:        "shipped_at",
	StatusInvoiced:       "invoiced_at",
}

// Order is a sales order header.
type Order struct {
	ID         int64      `json:"id"`
	Number     string     `json:"number"`
	ClientID   int64      `json:"client_id"`
	CreatedBy  int64      `json:"created_by"`
	Amount     float64    `json:"amount"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	PreparedAt *time.Time `json:"prepared_at,omitempty"`
	ReadyAt    *time.Time `json:"ready_at,omitempty"`
	ShippedAt  *time.Time `json:"shipped_at,omitempty"`
	InvoicedAt *time.Time `json:"invoiced_at,omitempty"`
}

var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = fmt.Errorf("sales: %w", shared.ErrNotFound)
	// ErrValidation indicates a malformed input.
	ErrValidation = fmt.Errorf("sales: %w", shared.ErrValidation)
	// ErrInvalidState indicates the order is not in the status the transition
	// requires, including a concurrent invocation losing the status race.
	ErrInvalidState = fmt.Errorf("sales: %w", shared.ErrInvalidState)
)
