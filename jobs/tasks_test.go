package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/sygep/sygep/internal/actors"
)

type fakeDirectory struct {
	byID map[int64]actors.Actor
}

func (f fakeDirectory) Get(ctx context.Context, id int64) (actors.Actor, error) {
	actor, ok := f.byID[id]
	if !ok {
		return actors.Actor{}, errors.New("jobs: unknown actor")
	}
	return actor, nil
}

func (f fakeDirectory) List(ctx context.Context) ([]actors.Actor, error) {
	var all []actors.Actor
	for _, actor := range f.byID {
		all = append(all, actor)
	}
	return all, nil
}

type recordedMail struct {
	to      string
	subject string
}

type fakeSender struct {
	sent    []recordedMail
	failFor string
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	if to == f.failFor {
		return errors.New("jobs: relay refused")
	}
	f.sent = append(f.sent, recordedMail{to: to, subject: subject})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEmailHandlerDeliversPerRecipient(t *testing.T) {
	dir := fakeDirectory{byID: map[int64]actors.Actor{
		20: {ID: 20, Name: "Samir", Email: "samir@sygep.local", IsActive: true},
		30: {ID: 30, Name: "Alice", Email: "alice@sygep.local", IsActive: true},
		40: {ID: 40, Name: "Nomail", IsActive: true},
	}}
	sender := &fakeSender{}
	handler := NewNotifyEmailHandler(dir, sender, discardLogger())

	task, err := NewNotifyEmailTask(NotifyEmailPayload{
		BatchID:    uuid.New(),
		Recipients: []int64{20, 30, 40, 99},
		Title:      "Stock check required",
		Message:    "Order CMD-20260901-000001 needs preparation.",
	})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))

	// Resolved actors with an address get one mail each; the actor without
	// an address and the unknown id are skipped.
	require.Len(t, sender.sent, 2)
	require.Equal(t, "samir@sygep.local", sender.sent[0].to)
	require.Equal(t, "Stock check required", sender.sent[0].subject)
	require.Equal(t, "alice@sygep.local", sender.sent[1].to)
}

func TestNotifyEmailHandlerKeepsGoingOnSendFailure(t *testing.T) {
	dir := fakeDirectory{byID: map[int64]actors.Actor{
		20: {ID: 20, Email: "samir@sygep.local", IsActive: true},
		30: {ID: 30, Email: "alice@sygep.local", IsActive: true},
	}}
	sender := &fakeSender{failFor: "samir@sygep.local"}
	handler := NewNotifyEmailHandler(dir, sender, discardLogger())

	task, err := NewNotifyEmailTask(NotifyEmailPayload{
		BatchID:    uuid.New(),
		Recipients: []int64{20, 30},
		Title:      "Payment required",
		Message:    "Purchase ACH-20260901-000002 was received.",
	})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, sender.sent, 1)
	require.Equal(t, "alice@sygep.local", sender.sent[0].to)
}

func TestNotifyEmailHandlerSkipsMalformedPayload(t *testing.T) {
	handler := NewNotifyEmailHandler(fakeDirectory{}, &fakeSender{}, discardLogger())
	err := handler(context.Background(), asynq.NewTask(TaskNotifyEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
