// Package masterdata holds the reference records the workflows depend on:
// clients, suppliers and products with their stock levels. These are plain
// lookups; all state lives in the workflow packages.
package masterdata

import (
	"fmt"
	"time"

	"github.com/sygep/sygep/internal/shared"
)

// ErrNotFound indicates a missing masterdata record.
var ErrNotFound = fmt.Errorf("masterdata: %w", shared.ErrNotFound)

// Client is a customer of the business.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Supplier is a vendor the business purchases from.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a stocked article. StockAlert is the threshold below which the
// product appears in the low-stock view.
type Product struct {
	ID         int64     `json:"id"`
	Reference  string    `json:"reference"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Stock      float64   `json:"stock"`
	StockAlert float64   `json:"stock_alert"`
	CreatedAt  time.Time `json:"created_at"`
}
