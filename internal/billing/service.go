// Package billing groups the settlement steps: invoicing shipped orders,
// paying received purchases, and the open-items view accounting works from.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/platform/cache"
	"github.com/sygep/sygep/internal/purchasing"
	"github.com/sygep/sygep/internal/sales"
	"github.com/sygep/sygep/internal/shared"
)

// SalesPort exposes the sales workflow operations billing needs.
type SalesPort interface {
	Invoice(ctx context.Context, actor actors.Actor, id int64) (sales.Order, error)
	ListPending(ctx context.Context, status sales.Status) ([]sales.Order, error)
}

// PurchasePort exposes the purchase workflow operations billing needs.
type PurchasePort interface {
	Pay(ctx context.Context, actor actors.Actor, id int64) (purchasing.Purchase, error)
	ListPending(ctx context.Context, status purchasing.Status) ([]purchasing.Purchase, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// OpenItems is everything still owed in either direction: shipped orders
// without an invoice and received purchases without a payment.
type OpenItems struct {
	Orders      []sales.Order         `json:"orders"`
	Purchases   []purchasing.Purchase `json:"purchases"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Coordinator drives settlements through the underlying workflows. Access
// checks and state guards stay in the workflows themselves; the coordinator
// adds the settlement audit trail and the cached open-items view.
type Coordinator struct {
	sales     SalesPort
	purchases PurchasePort
	audit     AuditPort
	cache     *cache.Cache
	group     singleflight.Group
	logger    *slog.Logger
}

// NewCoordinator constructs the billing coordinator.
func NewCoordinator(salesPort SalesPort, purchasePort PurchasePort, audit AuditPort, c *cache.Cache, logger *slog.Logger) *Coordinator {
	return &Coordinator{sales: salesPort, purchases: purchasePort, audit: audit, cache: c, logger: logger}
}

// InvoiceOrder settles a shipped order.
func (c *Coordinator) InvoiceOrder(ctx context.Context, actor actors.Actor, orderID int64) (sales.Order, error) {
	order, err := c.sales.Invoice(ctx, actor, orderID)
	if err != nil {
		return sales.Order{}, err
	}
	c.recordAudit(ctx, actor, "SETTLE_INVOICE", "sales_order", order.ID, map[string]any{"number": order.Number, "amount": order.Amount})
	c.bump(ctx)
	return order, nil
}

// PayPurchase settles a received purchase.
func (c *Coordinator) PayPurchase(ctx context.Context, actor actors.Actor, purchaseID int64) (purchasing.Purchase, error) {
	purchase, err := c.purchases.Pay(ctx, actor, purchaseID)
	if err != nil {
		return purchasing.Purchase{}, err
	}
	c.recordAudit(ctx, actor, "SETTLE_PAYMENT", "purchase_order", purchase.ID, map[string]any{"number": purchase.Number, "amount": purchase.Amount})
	c.bump(ctx)
	return purchase, nil
}

// OpenItems returns the settlement backlog. The view is cached and concurrent
// rebuilds collapse into one, so a stale answer is possible for up to the
// cache TTL.
func (c *Coordinator) OpenItems(ctx context.Context) (OpenItems, error) {
	key, err := c.cache.BuildKey(ctx, "billing", "open-items")
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("billing cache key", slog.Any("error", err))
		}
		return c.buildOpenItems(ctx)
	}
	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		var items OpenItems
		err := c.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (interface{}, error) {
			return c.buildOpenItems(ctx)
		})
		return items, err
	})
	if err != nil {
		return OpenItems{}, err
	}
	return value.(OpenItems), nil
}

func (c *Coordinator) buildOpenItems(ctx context.Context) (OpenItems, error) {
	orders, err := c.sales.ListPending(ctx, sales.StatusShipped)
	if err != nil {
		return OpenItems{}, err
	}
	purchases, err := c.purchases.ListPending(ctx, purchasing.StatusReceived)
	if err != nil {
		return OpenItems{}, err
	}
	return OpenItems{Orders: orders, Purchases: purchases, GeneratedAt: time.Now()}, nil
}

func (c *Coordinator) recordAudit(ctx context.Context, actor actors.Actor, action, entity string, entityID int64, meta map[string]any) {
	if c.audit == nil {
		return
	}
	err := c.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
	if err != nil && c.logger != nil {
		c.logger.Warn("billing audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (c *Coordinator) bump(ctx context.Context) {
	if err := c.cache.Bump(ctx); err != nil && c.logger != nil {
		c.logger.Warn("billing cache bump", slog.Any("error", err))
	}
}
