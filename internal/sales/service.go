package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/notify"
	"github.com/sygep/sygep/internal/platform/cache"
	"github.com/sygep/sygep/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	ListPending(ctx context.Context, status Status) ([]Order, error)
}

// ClientDirectory checks client existence during order creation.
type ClientDirectory interface {
	ClientExists(ctx context.Context, id int64) (bool, error)
}

// RecipientDirectory resolves role sets into concrete recipients. Resolution
// happens at notify time, so staffing changes take effect immediately.
type RecipientDirectory interface {
	WithRoles(ctx context.Context, roles ...actors.Role) ([]actors.Actor, error)
}

// AccessPort gates transitions on the (role, module) permission table.
type AccessPort interface {
	Require(ctx context.Context, actor actors.Actor, module access.Module, mode access.Mode) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort receives committed batches for out-of-band delivery.
type NotifierPort interface {
	AfterCommit(ctx context.Context, batchID uuid.UUID, batch notify.Batch)
}

// Service orchestrates the sales-order workflow.
type Service struct {
	repo     RepositoryPort
	clients  ClientDirectory
	dir      RecipientDirectory
	policy   AccessPort
	audit    AuditPort
	notifier NotifierPort
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewService constructs the sales service. Audit, notifier and cache are
// optional.
func NewService(repo RepositoryPort, clients ClientDirectory, dir RecipientDirectory, policy AccessPort, audit AuditPort, notifier NotifierPort, c *cache.Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, clients: clients, dir: dir, policy: policy, audit: audit, notifier: notifier, cache: c, logger: logger}
}

// CreateOrderInput describes creation payload.
type CreateOrderInput struct {
	ClientID int64
	Amount   float64
}

type committedBatch struct {
	id    uuid.UUID
	batch notify.Batch
}

// Create registers a new order in status NEW and notifies the stock team that
// a stock check is expected, plus the creator.
func (s *Service) Create(ctx context.Context, actor actors.Actor, input CreateOrderInput) (Order, error) {
	if err := s.require(ctx, actor, access.ModuleSalesWorkflow, "SALES_CREATE", 0); err != nil {
		return Order{}, err
	}
	if input.Amount <= 0 {
		return Order{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	exists, err := s.clients.ClientExists(ctx, input.ClientID)
	if err != nil {
		return Order{}, err
	}
	if !exists {
		return Order{}, fmt.Errorf("%w: unknown client %d", ErrValidation, input.ClientID)
	}

	now := time.Now()
	order := Order{
		Number:    generateNumber("CMD", now),
		ClientID:  input.ClientID,
		CreatedBy: actor.ID,
		Amount:    input.Amount,
		Status:    StatusNew,
		CreatedAt: now,
	}
	stockTeam, err := s.recipients(ctx, actors.RoleStock, actors.RoleAdmin)
	if err != nil {
		return Order{}, err
	}
	batches := []notify.Batch{
		{
			Recipients: stockTeam,
			Title:      "Stock check required",
			Message:    fmt.Sprintf("Order %s awaits a stock check.", order.Number),
			RefType:    notify.RefSalesOrder,
		},
		{
			Recipients: []int64{actor.ID},
			Title:      "Order registered",
			Message:    fmt.Sprintf("Order %s was registered.", order.Number),
			RefType:    notify.RefSalesOrder,
		},
	}

	var committed []committedBatch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		committed, err = insertBatches(ctx, tx, batches, id)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, committed)
	s.recordAudit(ctx, actor, "SALES_CREATE", order.ID, map[string]any{"number": order.Number, "amount": order.Amount})
	s.bump(ctx)
	return order, nil
}

// MarkReadyToPrepare advances NEW to READY_TO_PREPARE after the stock check.
func (s *Service) MarkReadyToPrepare(ctx context.Context, actor actors.Actor, id int64) (Order, error) {
	return s.transition(ctx, actor, id, access.ModuleSalesWorkflow, StatusNew, StatusReadyToPrepare, "SALES_READY_TO_PREPARE",
		func(ctx context.Context, order Order) ([]notify.Batch, error) {
			team, err := s.recipients(ctx, actors.RoleStock, actors.RoleAdmin)
			if err != nil {
				return nil, err
			}
			return []notify.Batch{{
				Recipients: team,
				Title:      "Preparation expected",
				Message:    fmt.Sprintf("Order %s is ready to prepare.", order.Number),
				RefID:      order.ID,
				RefType:    notify.RefSalesOrder,
			}}, nil
		})
}

// MarkReadyToShip advances READY_TO_PREPARE to READY_TO_SHIP once the goods
// are packed.
func (s *Service) MarkReadyToShip(ctx context.Context, actor actors.Actor, id int64) (Order, error) {
	return s.transition(ctx, actor, id, access.ModuleSalesWorkflow, StatusReadyToPrepare, StatusReadyToShip, "SALES_READY_TO_SHIP",
		func(ctx context.Context, order Order) ([]notify.Batch, error) {
			return []notify.Batch{{
				Recipients: []int64{order.CreatedBy},
				Title:      "Order ready to ship",
				Message:    fmt.Sprintf("Order %s is packed and ready to ship.", order.Number),
				RefID:      order.ID,
				RefType:    notify.RefSalesOrder,
			}}, nil
		})
}

// Ship advances READY_TO_SHIP to SHIPPED and tells accounting an invoice is
// due.
func (s *Service) Ship(ctx context.Context, actor actors.Actor, id int64) (Order, error) {
	return s.transition(ctx, actor, id, access.ModuleSalesWorkflow, StatusReadyToShip, StatusShipped, "SALES_SHIP",
		func(ctx context.Context, order Order) ([]notify.Batch, error) {
			accounting, err := s.recipients(ctx, actors.RoleAccounting, actors.RoleAdmin)
			if err != nil {
				return nil, err
			}
			return []notify.Batch{
				{
					Recipients: accounting,
					Title:      "Invoice required",
					Message:    fmt.Sprintf("Order %s shipped; invoice required.", order.Number),
					RefID:      order.ID,
					RefType:    notify.RefSalesOrder,
				},
				{
					Recipients: []int64{order.CreatedBy},
					Title:      "Order shipped",
					Message:    fmt.Sprintf("Order %s left the warehouse.", order.Number),
					RefID:      order.ID,
					RefType:    notify.RefSalesOrder,
				},
			}, nil
		})
}

// Invoice closes the order. The step belongs to the accounting module, not the
// sales workflow, so only accounting (or admin) may invoke it.
func (s *Service) Invoice(ctx context.Context, actor actors.Actor, id int64) (Order, error) {
	return s.transition(ctx, actor, id, access.ModuleAccounting, StatusShipped, StatusInvoiced, "SALES_INVOICE",
		func(ctx context.Context, order Order) ([]notify.Batch, error) {
			return []notify.Batch{{
				Recipients: []int64{order.CreatedBy},
				Title:      "Order invoiced",
				Message:    fmt.Sprintf("Order %s was invoiced.", order.Number),
				RefID:      order.ID,
				RefType:    notify.RefSalesOrder,
			}}, nil
		})
}

// Get fetches one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// ListPending returns orders waiting in the given status, oldest first. The
// listing tolerates cache staleness up to the cache TTL.
func (s *Service) ListPending(ctx context.Context, status Status) ([]Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	key, err := s.cache.BuildKey(ctx, "sales", "pending", string(status))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("sales cache key", slog.Any("error", err))
		}
		return s.repo.ListPending(ctx, status)
	}
	var orders []Order
	err = s.cache.FetchJSON(ctx, key, &orders, func(ctx context.Context) (interface{}, error) {
		return s.repo.ListPending(ctx, status)
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Service) transition(ctx context.Context, actor actors.Actor, id int64, module access.Module, from, to Status, action string, build func(context.Context, Order) ([]notify.Batch, error)) (Order, error) {
	if err := s.require(ctx, actor, module, action, id); err != nil {
		return Order{}, err
	}
	if !CanTransition(from, to) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidState, from, to)
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if order.Status != from {
		return Order{}, fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidState, order.Number, order.Status, from)
	}
	batches, err := build(ctx, order)
	if err != nil {
		return Order{}, err
	}

	now := time.Now()
	var committed []committedBatch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.AdvanceStatus(ctx, id, from, to, now)
		if err != nil {
			return err
		}
		if !ok {
			// Someone else advanced the order between the read and this
			// UPDATE. Rolling back also removes the fan-out.
			return fmt.Errorf("%w: %s already left %s", ErrInvalidState, order.Number, from)
		}
		committed, err = insertBatches(ctx, tx, batches, id)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	order.Status = to
	applyStamp(&order, to, now)
	s.afterCommit(ctx, committed)
	s.recordAudit(ctx, actor, action, order.ID, map[string]any{"number": order.Number, "from": string(from), "to": string(to)})
	s.bump(ctx)
	return order, nil
}

func insertBatches(ctx context.Context, tx TxRepository, batches []notify.Batch, refID int64) ([]committedBatch, error) {
	committed := make([]committedBatch, 0, len(batches))
	for _, batch := range batches {
		batch.RefID = refID
		if len(batch.CleanRecipients()) == 0 {
			continue
		}
		batchID := uuid.New()
		if _, err := tx.InsertNotifications(ctx, batchID, batch); err != nil {
			return nil, err
		}
		committed = append(committed, committedBatch{id: batchID, batch: batch})
	}
	return committed, nil
}

func (s *Service) require(ctx context.Context, actor actors.Actor, module access.Module, action string, entityID int64) error {
	err := s.policy.Require(ctx, actor, module, access.ModeWrite)
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrForbidden) {
		s.recordAudit(ctx, actor, action+"_DENIED", entityID, map[string]any{"module": string(module)})
	}
	return err
}

func (s *Service) afterCommit(ctx context.Context, committed []committedBatch) {
	if s.notifier == nil {
		return
	}
	for _, c := range committed {
		s.notifier.AfterCommit(ctx, c.id, c.batch)
	}
}

func (s *Service) recipients(ctx context.Context, roles ...actors.Role) ([]int64, error) {
	team, err := s.dir.WithRoles(ctx, roles...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(team))
	for _, member := range team {
		ids = append(ids, member.ID)
	}
	return ids, nil
}

func (s *Service) recordAudit(ctx context.Context, actor actors.Actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "sales_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
	if err != nil && s.logger != nil {
		s.logger.Warn("sales audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) bump(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("sales cache bump", slog.Any("error", err))
	}
}

func applyStamp(order *Order, to Status, at time.Time) {
	switch to {
	case StatusReadyToPrepare:
		order.PreparedAt = &at
	case StatusReadyToShip:
		order.ReadyAt = &at
	case StatusShipped:
		order.ShippedAt = &at
	case StatusInvoiced:
		order.InvoicedAt = &at
	}
}

func generateNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, now.Format("20060102"), now.UnixNano()%1_000_000)
}
