package notify

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sygep/sygep/internal/shared"
)

type memoryNotifyRepo struct {
	seq  int64
	rows map[int64]Notification
}

func newMemoryNotifyRepo() *memoryNotifyRepo {
	return &memoryNotifyRepo{rows: map[int64]Notification{}}
}

func (m *memoryNotifyRepo) InsertBatch(ctx context.Context, batchID uuid.UUID, batch Batch) (int, error) {
	recipients := batch.CleanRecipients()
	for _, id := range recipients {
		m.seq++
		m.rows[m.seq] = Notification{
			ID:          m.seq,
			RecipientID: id,
			Title:       batch.Title,
			Message:     batch.Message,
			BatchID:     batchID,
			RefID:       batch.RefID,
			RefType:     batch.RefType,
			CreatedAt:   time.Now(),
		}
	}
	return len(recipients), nil
}

func (m *memoryNotifyRepo) ListUnread(ctx context.Context, actorID int64) ([]Notification, error) {
	var result []Notification
	for _, n := range m.rows {
		if n.RecipientID == actorID && !n.Read {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (m *memoryNotifyRepo) CountUnread(ctx context.Context, actorID int64) (int, error) {
	count := 0
	for _, n := range m.rows {
		if n.RecipientID == actorID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *memoryNotifyRepo) MarkRead(ctx context.Context, actorID, notificationID int64) (bool, error) {
	n, ok := m.rows[notificationID]
	if !ok || n.RecipientID != actorID {
		return false, nil
	}
	if !n.Read {
		n.Read = true
		n.ReadAt = time.Now()
		m.rows[notificationID] = n
	}
	return true, nil
}

type recordingMailer struct {
	batches []Batch
}

func (r *recordingMailer) EnqueueBatch(ctx context.Context, batchID uuid.UUID, batch Batch) error {
	r.batches = append(r.batches, batch)
	return nil
}

func TestNotifyDropsInvalidAndDuplicateRecipients(t *testing.T) {
	repo := newMemoryNotifyRepo()
	svc := NewService(repo, nil, nil)

	inserted, err := svc.Notify(context.Background(), Batch{
		Recipients: []int64{5, 0, 7},
		Title:      "Stock check required",
		RefID:      1,
		RefType:    RefSalesOrder,
	})
	require.NoError(t, err)
	require.Equal(t, 2, inserted)
	require.Len(t, repo.rows, 2)

	inserted, err = svc.Notify(context.Background(), Batch{
		Recipients: []int64{7, 7, 7},
		Title:      "Again",
	})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)
}

func TestNotifyEmptyRecipientsIsNoOp(t *testing.T) {
	repo := newMemoryNotifyRepo()
	mailer := &recordingMailer{}
	svc := NewService(repo, mailer, nil)

	inserted, err := svc.Notify(context.Background(), Batch{Recipients: []int64{0, -3}, Title: "Nobody"})
	require.NoError(t, err)
	require.Zero(t, inserted)
	require.Empty(t, repo.rows)
	require.Empty(t, mailer.batches)
}

func TestNotifyRequiresTitle(t *testing.T) {
	svc := NewService(newMemoryNotifyRepo(), nil, nil)

	_, err := svc.Notify(context.Background(), Batch{Recipients: []int64{5}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNotifyHandsBatchToMailer(t *testing.T) {
	repo := newMemoryNotifyRepo()
	mailer := &recordingMailer{}
	svc := NewService(repo, mailer, nil)

	_, err := svc.Notify(context.Background(), Batch{Recipients: []int64{5}, Title: "Hello"})
	require.NoError(t, err)
	require.Len(t, mailer.batches, 1)
	require.Equal(t, "Hello", mailer.batches[0].Title)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	repo := newMemoryNotifyRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Notify(ctx, Batch{Recipients: []int64{5}, Title: "Once"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, 5, 1))
	require.NoError(t, svc.MarkRead(ctx, 5, 1))

	count, err := svc.CountUnread(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, count)
	require.True(t, repo.rows[1].Read)
}

func TestMarkReadUnknownOrForeign(t *testing.T) {
	repo := newMemoryNotifyRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Notify(ctx, Batch{Recipients: []int64{5}, Title: "Mine"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.MarkRead(ctx, 5, 99), shared.ErrNotFound)
	// Another recipient cannot mark someone else's notification.
	require.ErrorIs(t, svc.MarkRead(ctx, 6, 1), shared.ErrNotFound)
	require.False(t, repo.rows[1].Read)
}

func TestListUnreadNewestFirst(t *testing.T) {
	repo := newMemoryNotifyRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		_, err := svc.Notify(ctx, Batch{Recipients: []int64{5}, Title: title})
		require.NoError(t, err)
	}

	items, err := svc.ListUnread(ctx, 5)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "third", items[0].Title)
	require.Equal(t, "first", items[2].Title)
}
