package purchasing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
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
	Get(ctx context.Context, id int64) (Purchase, error)
	Lines(ctx context.Context, purchaseID int64) ([]Line, error)
	ListPending(ctx context.Context, status Status) ([]Purchase, error)
}

// SupplierDirectory checks supplier existence during creation.
type SupplierDirectory interface {
	SupplierExists(ctx context.Context, id int64) (bool, error)
}

// RecipientDirectory resolves role sets into concrete recipients.
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

// Service orchestrates the purchase-order workflow.
type Service struct {
	repo      RepositoryPort
	suppliers SupplierDirectory
	dir       RecipientDirectory
	policy    AccessPort
	audit     AuditPort
	notifier  NotifierPort
	cache     *cache.Cache
	logger    *slog.Logger
}

// NewService constructs the purchasing service. Audit, notifier and cache are
// optional.
func NewService(repo RepositoryPort, suppliers SupplierDirectory, dir RecipientDirectory, policy AccessPort, audit AuditPort, notifier NotifierPort, c *cache.Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, suppliers: suppliers, dir: dir, policy: policy, audit: audit, notifier: notifier, cache: c, logger: logger}
}

// CreatePurchaseInput describes creation payload.
type CreatePurchaseInput struct {
	SupplierID int64
	Amount     float64
	Lines      []LineInput
}

// LineInput is one ordered product.
type LineInput struct {
	ProductID int64
	Qty       float64
}

// ReceiveInput carries the reception data. The delivery note is mandatory.
type ReceiveInput struct {
	DeliveryNote string
	ReceivedAt   time.Time
}

type committedBatch struct {
	id    uuid.UUID
	batch notify.Batch
}

// Create registers a new purchase in status NEW and notifies the
// administration that a validation is expected, plus the creator.
func (s *Service) Create(ctx context.Context, actor actors.Actor, input CreatePurchaseInput) (Purchase, error) {
	if err := s.require(ctx, actor, access.ModulePurchaseWorkflow, "PURCHASE_CREATE", 0); err != nil {
		return Purchase{}, err
	}
	if input.Amount <= 0 {
		return Purchase{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Purchase{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID <= 0 || line.Qty <= 0 {
			return Purchase{}, fmt.Errorf("%w: lines need a product and a positive quantity", ErrValidation)
		}
	}
	exists, err := s.suppliers.SupplierExists(ctx, input.SupplierID)
	if err != nil {
		return Purchase{}, err
	}
	if !exists {
		return Purchase{}, fmt.Errorf("%w: unknown supplier %d", ErrValidation, input.SupplierID)
	}

	now := time.Now()
	purchase := Purchase{
		Number:     generateNumber("ACH", now),
		SupplierID: input.SupplierID,
		CreatedBy:  actor.ID,
		Amount:     input.Amount,
		Status:     StatusNew,
		CreatedAt:  now,
	}
	admins, err := s.recipients(ctx, actors.RoleAdmin)
	if err != nil {
		return Purchase{}, err
	}
	batches := []notify.Batch{
		{
			Recipients: admins,
			Title:      "Validation expected",
			Message:    fmt.Sprintf("Purchase %s awaits validation.", purchase.Number),
			RefType:    notify.RefPurchaseOrder,
		},
		{
			Recipients: []int64{actor.ID},
			Title:      "Purchase registered",
			Message:    fmt.Sprintf("Purchase %s was registered.", purchase.Number),
			RefType:    notify.RefPurchaseOrder,
		},
	}

	var committed []committedBatch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		for _, line := range input.Lines {
			if err := tx.InsertLine(ctx, Line{PurchaseID: id, ProductID: line.ProductID, Qty: line.Qty}); err != nil {
				return err
			}
		}
		committed, err = insertBatches(ctx, tx, batches, id)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	s.afterCommit(ctx, committed)
	s.recordAudit(ctx, actor, "PURCHASE_CREATE", purchase.ID, map[string]any{"number": purchase.Number, "amount": purchase.Amount})
	s.bump(ctx)
	return purchase, nil
}

// Validate advances NEW to ORDERED and tells the stock team a reception is
// expected.
func (s *Service) Validate(ctx context.Context, actor actors.Actor, id int64) (Purchase, error) {
	if err := s.require(ctx, actor, access.ModulePurchaseWorkflow, "PURCHASE_VALIDATE", id); err != nil {
		return Purchase{}, err
	}
	purchase, err := s.guarded(ctx, id, StatusNew, StatusOrdered)
	if err != nil {
		return Purchase{}, err
	}
	team, err := s.recipients(ctx, actors.RoleStock, actors.RoleAdmin)
	if err != nil {
		return Purchase{}, err
	}
	batches := []notify.Batch{{
		Recipients: team,
		Title:      "Reception expected",
		Message:    fmt.Sprintf("Purchase %s was ordered; reception expected.", purchase.Number),
		RefType:    notify.RefPurchaseOrder,
	}}

	now := time.Now()
	var committed []committedBatch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.AdvanceStatus(ctx, id, StatusNew, StatusOrdered, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s already left %s", ErrInvalidState, purchase.Number, StatusNew)
		}
		committed, err = insertBatches(ctx, tx, batches, id)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	purchase.Status = StatusOrdered
	purchase.ValidatedAt = &now
	s.afterCommit(ctx, committed)
	s.recordAudit(ctx, actor, "PURCHASE_VALIDATE", id, map[string]any{"number": purchase.Number})
	s.bump(ctx)
	return purchase, nil
}

// Receive advances ORDERED to RECEIVED. Stock increments, movement records and
// the status change share one transaction: reception is all or nothing.
func (s *Service) Receive(ctx context.Context, actor actors.Actor, id int64, input ReceiveInput) (Purchase, error) {
	if err := s.require(ctx, actor, access.ModulePurchaseWorkflow, "PURCHASE_RECEIVE", id); err != nil {
		return Purchase{}, err
	}
	note := strings.TrimSpace(input.DeliveryNote)
	if note == "" {
		return Purchase{}, fmt.Errorf("%w: delivery note required", ErrValidation)
	}
	purchase, err := s.guarded(ctx, id, StatusOrdered, StatusReceived)
	if err != nil {
		return Purchase{}, err
	}
	lines, err := s.repo.Lines(ctx, id)
	if err != nil {
		return Purchase{}, err
	}
	accounting, err := s.recipients(ctx, actors.RoleAccounting, actors.RoleAdmin)
	if err != nil {
		return Purchase{}, err
	}
	batches := []notify.Batch{{
		Recipients: accounting,
		Title:      "Payment required",
		Message:    fmt.Sprintf("Purchase %s received (note %s); payment required.", purchase.Number, note),
		RefType:    notify.RefPurchaseOrder,
	}}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	var committed []committedBatch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.MarkReceived(ctx, id, note, receivedAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s already left %s", ErrInvalidState, purchase.Number, StatusOrdered)
		}
		for _, line := range lines {
			if err := tx.IncrementStock(ctx, line.ProductID, line.Qty); err != nil {
				return err
			}
			movement := StockMovement{PurchaseID: id, ProductID: line.ProductID, Qty: line.Qty, Ref: uuid.New()}
			if err := tx.InsertStockMovement(ctx, movement); err != nil {
				return err
			}
		}
		committed, err = insertBatches(ctx, tx, batches, id)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	purchase.Status = StatusReceived
	purchase.ReceivedAt = &receivedAt
	purchase.DeliveryNote = note
	s.afterCommit(ctx, committed)
	s.recordAudit(ctx, actor, "PURCHASE_RECEIVE", id, map[string]any{"number": purchase.Number, "delivery_note": note, "lines": len(lines)})
	s.bump(ctx)
	return purchase, nil
}

// Pay closes the purchase. The step belongs to the accounting module.
func (s *Service) Pay(ctx context.Context, actor actors.Actor, id int64) (Purchase, error) {
	if err := s.require(ctx, actor, access.ModuleAccounting, "PURCHASE_PAY", id); err != nil {
		return Purchase{}, err
	}
	purchase, err := s.guarded(ctx, id, StatusReceived, StatusPaid)
	if err != nil {
		return Purchase{}, err
	}
	batches := []notify.Batch{{
		Recipients: []int64{purchase.CreatedBy},
		Title:      "Purchase paid",
		Message:    fmt.Sprintf("Purchase %s was paid.", purchase.Number),
		RefType:    notify.RefPurchaseOrder,
	}}

	now := time.Now()
	var committed []committedBatch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.AdvanceStatus(ctx, id, StatusReceived, StatusPaid, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s already left %s", ErrInvalidState, purchase.Number, StatusReceived)
		}
		committed, err = insertBatches(ctx, tx, batches, id)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	purchase.Status = StatusPaid
	purchase.PaidAt = &now
	s.afterCommit(ctx, committed)
	s.recordAudit(ctx, actor, "PURCHASE_PAY", id, map[string]any{"number": purchase.Number})
	s.bump(ctx)
	return purchase, nil
}

// Get fetches one purchase.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.Get(ctx, id)
}

// Lines returns the line items of a purchase.
func (s *Service) Lines(ctx context.Context, id int64) ([]Line, error) {
	return s.repo.Lines(ctx, id)
}

// ListPending returns purchases waiting in the given status, oldest first.
func (s *Service) ListPending(ctx context.Context, status Status) ([]Purchase, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	key, err := s.cache.BuildKey(ctx, "purchasing", "pending", string(status))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("purchasing cache key", slog.Any("error", err))
		}
		return s.repo.ListPending(ctx, status)
	}
	var purchases []Purchase
	err = s.cache.FetchJSON(ctx, key, &purchases, func(ctx context.Context) (interface{}, error) {
		return s.repo.ListPending(ctx, status)
	})
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Service) guarded(ctx context.Context, id int64, from, to Status) (Purchase, error) {
	if !CanTransition(from, to) {
		return Purchase{}, fmt.Errorf("%w: %s to %s", ErrInvalidState, from, to)
	}
	purchase, err := s.repo.Get(ctx, id)
	if err != nil {
		return Purchase{}, err
	}
	if purchase.Status != from {
		return Purchase{}, fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidState, purchase.Number, purchase.Status, from)
	}
	return purchase, nil
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
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
	if err != nil && s.logger != nil {
		s.logger.Warn("purchasing audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) bump(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("purchasing cache bump", slog.Any("error", err))
	}
}

func generateNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, now.Format("20060102"), now.UnixNano()%1_000_000)
}
