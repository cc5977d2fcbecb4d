package purchasing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/notify"
	"github.com/sygep/sygep/internal/shared"
)

type sentBatch struct {
	batchID uuid.UUID
	batch   notify.Batch
}

type memoryPurchaseRepo struct {
	seq       int64
	purchases map[int64]Purchase
	lines     map[int64][]Line
	stock     map[int64]float64
	movements []StockMovement
	notes     []sentBatch

	// loseReceive makes the guarded update report zero affected rows, the
	// way a concurrent reception that committed first would.
	loseReceive bool
	noteErr     error
}

func newMemoryPurchaseRepo() *memoryPurchaseRepo {
	return &memoryPurchaseRepo{
		purchases: map[int64]Purchase{},
		lines:     map[int64][]Line{},
		stock:     map[int64]float64{},
	}
}

func (m *memoryPurchaseRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	purchases := make(map[int64]Purchase, len(m.purchases))
	for id, p := range m.purchases {
		purchases[id] = p
	}
	stock := make(map[int64]float64, len(m.stock))
	for id, qty := range m.stock {
		stock[id] = qty
	}
	noteMark, moveMark := len(m.notes), len(m.movements)
	if err := fn(ctx, m); err != nil {
		m.purchases = purchases
		m.stock = stock
		m.notes = m.notes[:noteMark]
		m.movements = m.movements[:moveMark]
		return err
	}
	return nil
}

func (m *memoryPurchaseRepo) Insert(ctx context.Context, purchase Purchase) (int64, error) {
	m.seq++
	purchase.ID = m.seq
	m.purchases[m.seq] = purchase
	return m.seq, nil
}

func (m *memoryPurchaseRepo) InsertLine(ctx context.Context, line Line) error {
	line.ID = int64(len(m.lines[line.PurchaseID]) + 1)
	m.lines[line.PurchaseID] = append(m.lines[line.PurchaseID], line)
	return nil
}

func (m *memoryPurchaseRepo) AdvanceStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error) {
	purchase, ok := m.purchases[id]
	if !ok || purchase.Status != from {
		return false, nil
	}
	purchase.Status = to
	switch to {
	case StatusOrdered:
		purchase.ValidatedAt = &at
	case StatusPaid:
		purchase.PaidAt = &at
	}
	m.purchases[id] = purchase
	return true, nil
}

func (m *memoryPurchaseRepo) MarkReceived(ctx context.Context, id int64, deliveryNote string, at time.Time) (bool, error) {
	if m.loseReceive {
		return false, nil
	}
	purchase, ok := m.purchases[id]
	if !ok || purchase.Status != StatusOrdered {
		return false, nil
	}
	purchase.Status = StatusReceived
	purchase.ReceivedAt = &at
	purchase.DeliveryNote = deliveryNote
	m.purchases[id] = purchase
	return true, nil
}

func (m *memoryPurchaseRepo) IncrementStock(ctx context.Context, productID int64, qty float64) error {
	m.stock[productID] += qty
	return nil
}

func (m *memoryPurchaseRepo) InsertStockMovement(ctx context.Context, movement StockMovement) error {
	m.movements = append(m.movements, movement)
	return nil
}

func (m *memoryPurchaseRepo) InsertNotifications(ctx context.Context, batchID uuid.UUID, batch notify.Batch) (int, error) {
	if m.noteErr != nil {
		return 0, m.noteErr
	}
	m.notes = append(m.notes, sentBatch{batchID: batchID, batch: batch})
	return len(batch.CleanRecipients()), nil
}

func (m *memoryPurchaseRepo) Get(ctx context.Context, id int64) (Purchase, error) {
	purchase, ok := m.purchases[id]
	if !ok {
		return Purchase{}, ErrNotFound
	}
	return purchase, nil
}

func (m *memoryPurchaseRepo) Lines(ctx context.Context, purchaseID int64) ([]Line, error) {
	return m.lines[purchaseID], nil
}

func (m *memoryPurchaseRepo) ListPending(ctx context.Context, status Status) ([]Purchase, error) {
	var result []Purchase
	for _, purchase := range m.purchases {
		if purchase.Status == status {
			result = append(result, purchase)
		}
	}
	return result, nil
}

type memoryPerms struct {
	entries map[string]access.Permission
}

func (m memoryPerms) Lookup(ctx context.Context, role actors.Role, module access.Module) (access.Permission, error) {
	return m.entries[string(role)+"/"+string(module)], nil
}

type memorySuppliers struct {
	known map[int64]bool
}

func (m memorySuppliers) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return m.known[id], nil
}

type memoryDirectory struct {
	byRole map[actors.Role][]actors.Actor
}

func (m memoryDirectory) WithRoles(ctx context.Context, roles ...actors.Role) ([]actors.Actor, error) {
	var result []actors.Actor
	for _, role := range roles {
		result = append(result, m.byRole[role]...)
	}
	return result, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

var (
	buyerActor      = actors.Actor{ID: 11, Name: "Brice", Role: actors.RoleSales, IsActive: true}
	stockActor      = actors.Actor{ID: 21, Name: "Stella", Role: actors.RoleStock, IsActive: true}
	accountingActor = actors.Actor{ID: 31, Name: "Amina", Role: actors.RoleAccounting, IsActive: true}
	adminActor      = actors.Actor{ID: 2, Name: "Root", Role: actors.RoleAdmin, IsActive: true}
)

func newTestService(repo *memoryPurchaseRepo, audit *memoryAudit) *Service {
	perms := memoryPerms{entries: map[string]access.Permission{
		"sales/purchase-workflow": {CanRead: true, CanWrite: true},
		"stock/purchase-workflow": {CanRead: true, CanWrite: true},
		"accounting/accounting":   {CanRead: true, CanWrite: true},
	}}
	suppliers := memorySuppliers{known: map[int64]bool{200: true}}
	dir := memoryDirectory{byRole: map[actors.Role][]actors.Actor{
		actors.RoleStock:      {stockActor},
		actors.RoleAdmin:      {adminActor},
		actors.RoleAccounting: {accountingActor},
	}}
	return NewService(repo, suppliers, dir, access.NewPolicy(perms), audit, nil, nil, nil)
}

func TestCreatePurchaseValidation(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := newTestService(repo, &memoryAudit{})
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreatePurchaseInput
	}{
		{"zero amount", CreatePurchaseInput{SupplierID: 200, Amount: 0, Lines: []LineInput{{ProductID: 1, Qty: 2}}}},
		{"no lines", CreatePurchaseInput{SupplierID: 200, Amount: 50}},
		{"bad line qty", CreatePurchaseInput{SupplierID: 200, Amount: 50, Lines: []LineInput{{ProductID: 1, Qty: 0}}}},
		{"unknown supplier", CreatePurchaseInput{SupplierID: 999, Amount: 50, Lines: []LineInput{{ProductID: 1, Qty: 2}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, buyerActor, tc.input)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, repo.purchases)
}

func TestPurchaseLifecycleIncrementsStock(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := newTestService(repo, &memoryAudit{})
	ctx := context.Background()

	purchase, err := svc.Create(ctx, buyerActor, CreatePurchaseInput{
		SupplierID: 200,
		Amount:     300,
		Lines:      []LineInput{{ProductID: 7, Qty: 4}, {ProductID: 8, Qty: 1.5}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusNew, purchase.Status)
	require.Len(t, repo.lines[purchase.ID], 2)

	purchase, err = svc.Validate(ctx, buyerActor, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, purchase.Status)
	require.NotNil(t, purchase.ValidatedAt)

	purchase, err = svc.Receive(ctx, stockActor, purchase.ID, ReceiveInput{DeliveryNote: "BL-001"})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, purchase.Status)
	require.Equal(t, "BL-001", purchase.DeliveryNote)
	require.Equal(t, 4.0, repo.stock[7])
	require.Equal(t, 1.5, repo.stock[8])
	require.Len(t, repo.movements, 2)

	purchase, err = svc.Pay(ctx, accountingActor, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, purchase.Status)
	require.NotNil(t, purchase.PaidAt)
}

func TestReceiveRequiresDeliveryNote(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := newTestService(repo, &memoryAudit{})
	ctx := context.Background()

	purchase, err := svc.Create(ctx, buyerActor, CreatePurchaseInput{
		SupplierID: 200, Amount: 100, Lines: []LineInput{{ProductID: 7, Qty: 3}},
	})
	require.NoError(t, err)
	_, err = svc.Validate(ctx, buyerActor, purchase.ID)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, stockActor, purchase.ID, ReceiveInput{DeliveryNote: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)

	stored, err := repo.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, stored.Status)
	require.Zero(t, repo.stock[7])
	require.Empty(t, repo.movements)
}

func TestReceiveLosesRaceAgainstConcurrentReception(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := newTestService(repo, &memoryAudit{})
	ctx := context.Background()

	purchase, err := svc.Create(ctx, buyerActor, CreatePurchaseInput{
		SupplierID: 200, Amount: 100, Lines: []LineInput{{ProductID: 7, Qty: 3}},
	})
	require.NoError(t, err)
	_, err = svc.Validate(ctx, buyerActor, purchase.ID)
	require.NoError(t, err)

	// The status read passes, then the guarded update inside the
	// transaction touches zero rows.
	count := len(repo.notes)
	repo.loseReceive = true
	_, err = svc.Receive(ctx, stockActor, purchase.ID, ReceiveInput{DeliveryNote: "BL-004"})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, repo.notes, count)
	require.Zero(t, repo.stock[7])
	require.Empty(t, repo.movements)

	stored, err := repo.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, stored.Status)
	require.Nil(t, stored.ReceivedAt)
}

func TestReceiveFanOutFailureRollsBackStock(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := newTestService(repo, &memoryAudit{})
	ctx := context.Background()

	purchase, err := svc.Create(ctx, buyerActor, CreatePurchaseInput{
		SupplierID: 200, Amount: 100, Lines: []LineInput{{ProductID: 7, Qty: 3}},
	})
	require.NoError(t, err)
	_, err = svc.Validate(ctx, buyerActor, purchase.ID)
	require.NoError(t, err)

	count := len(repo.notes)
	repo.noteErr = errors.New("insert notifications: connection reset")
	_, err = svc.Receive(ctx, stockActor, purchase.ID, ReceiveInput{DeliveryNote: "BL-005"})
	require.Error(t, err)
	require.Len(t, repo.notes, count)

	// Status, stock and movements ride the same transaction as the fan-out.
	stored, err := repo.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, stored.Status)
	require.Zero(t, repo.stock[7])
	require.Empty(t, repo.movements)

	repo.noteErr = nil
	received, err := svc.Receive(ctx, stockActor, purchase.ID, ReceiveInput{DeliveryNote: "BL-005"})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, received.Status)
	require.Equal(t, 3.0, repo.stock[7])
}

func TestPurchaseForwardOnly(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := newTestService(repo, &memoryAudit{})
	ctx := context.Background()

	purchase, err := svc.Create(ctx, buyerActor, CreatePurchaseInput{
		SupplierID: 200, Amount: 100, Lines: []LineInput{{ProductID: 7, Qty: 3}},
	})
	require.NoError(t, err)

	// Receiving before validation is rejected.
	_, err = svc.Receive(ctx, stockActor, purchase.ID, ReceiveInput{DeliveryNote: "BL-002"})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// Paying before reception is rejected.
	_, err = svc.Pay(ctx, accountingActor, purchase.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.Validate(ctx, buyerActor, purchase.ID)
	require.NoError(t, err)

	// Validating twice is rejected without a second fan-out.
	count := len(repo.notes)
	_, err = svc.Validate(ctx, buyerActor, purchase.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, repo.notes, count)
}

func TestPayRequiresAccounting(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	audit := &memoryAudit{}
	svc := newTestService(repo, audit)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, buyerActor, CreatePurchaseInput{
		SupplierID: 200, Amount: 100, Lines: []LineInput{{ProductID: 7, Qty: 3}},
	})
	require.NoError(t, err)
	_, err = svc.Validate(ctx, buyerActor, purchase.ID)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, stockActor, purchase.ID, ReceiveInput{DeliveryNote: "BL-003"})
	require.NoError(t, err)

	_, err = svc.Pay(ctx, stockActor, purchase.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	stored, err := repo.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, stored.Status)
	require.Equal(t, "PURCHASE_PAY_DENIED", audit.logs[len(audit.logs)-1].Action)

	_, err = svc.Pay(ctx, adminActor, purchase.ID)
	require.NoError(t, err)
}
