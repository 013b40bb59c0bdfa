package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-patungan/internal/lock"
	"github.com/noah-isme/backend-patungan/internal/payment"
	"github.com/noah-isme/backend-patungan/internal/session"
)

func newTestSession(t *testing.T, store session.Store) *session.Session {
	t.Helper()
	now := time.Now().UTC()
	sess := &session.Session{
		ID:             "sess-1",
		RestaurantName: "Warung Tegal",
		Status:         session.StatusActive,
		TotalCents:     10000,
		TipCents:       1000,
		Participants: []session.Participant{
			{ID: "p-1", Name: "Ana", AmountOwedCents: 5500, PaymentState: session.PaymentUnpaid, JoinedAt: now},
			{ID: "p-2", Name: "Ben", AmountOwedCents: 5500, PaymentState: session.PaymentUnpaid, JoinedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Put(context.Background(), sess))
	return sess
}

func newReconciler(store session.Store) *payment.Service {
	return &payment.Service{
		Store:    store,
		Locks:    lock.NewKeyed(),
		Provider: payment.MockProvider{},
		Logger:   zerolog.Nop(),
	}
}

func TestRecordAttemptMarksPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	attempt, err := svc.RecordAttempt(ctx, "sess-1", "p-1", 5500)
	require.NoError(t, err)
	require.Equal(t, int64(5500), attempt.AmountCents)
	require.NotEmpty(t, attempt.Reference)
	require.Equal(t, "mock", attempt.Provider)

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	p := sess.Participant("p-1")
	require.Equal(t, session.PaymentPending, p.PaymentState)
	require.Equal(t, attempt.Reference, p.PaymentReference)
	require.NotNil(t, p.PaymentUpdatedAt)
}

func TestRecordAttemptToleratesOneCent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	attempt, err := svc.RecordAttempt(ctx, "sess-1", "p-1", 5501)
	require.NoError(t, err)
	// The charge uses the allocation, not the submitted amount.
	require.Equal(t, int64(5500), attempt.AmountCents)
}

func TestRecordAttemptAmountMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	_, err := svc.RecordAttempt(ctx, "sess-1", "p-1", 5000)
	require.ErrorIs(t, err, payment.ErrAmountMismatch)

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.PaymentUnpaid, sess.Participant("p-1").PaymentState)
}

func TestRecordAttemptRejectsPaidParticipant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventSucceeded, Reference: "ref-1",
	}))

	_, err := svc.RecordAttempt(ctx, "sess-1", "p-1", 5500)
	require.ErrorIs(t, err, payment.ErrAlreadyPaid)
}

func TestRecordAttemptUnknownTargets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	_, err := svc.RecordAttempt(ctx, "missing", "p-1", 5500)
	require.ErrorIs(t, err, session.ErrNotFound)

	_, err = svc.RecordAttempt(ctx, "sess-1", "missing", 5500)
	require.ErrorIs(t, err, session.ErrParticipantNotFound)
}

func TestApplyEventSettlesParticipant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	occurred := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventSucceeded, Reference: "ref-1", OccurredAt: occurred,
	}))

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	p := sess.Participant("p-1")
	require.Equal(t, session.PaymentPaid, p.PaymentState)
	require.Equal(t, "ref-1", p.PaymentReference)
	require.Equal(t, occurred, p.PaymentUpdatedAt.UTC())
	require.Equal(t, session.StatusActive, sess.Status)
}

func TestApplyEventCompletesSessionWhenAllPaid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventSucceeded, Reference: "ref-1",
	}))
	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-2",
		Kind: payment.EventSucceeded, Reference: "ref-2",
	}))

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.StatusCompleted, sess.Status)
	require.True(t, sess.AllPaid())
}

func TestApplyEventDuplicateIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	ev := payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventSucceeded, Reference: "ref-1",
	}
	require.NoError(t, svc.ApplyEvent(ctx, ev))

	before, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	stamp := *before.Participant("p-1").PaymentUpdatedAt

	require.NoError(t, svc.ApplyEvent(ctx, ev))

	after, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	p := after.Participant("p-1")
	require.Equal(t, session.PaymentPaid, p.PaymentState)
	require.Equal(t, stamp, *p.PaymentUpdatedAt)
}

func TestApplyEventNeverDowngradesPaid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventSucceeded, Reference: "ref-1",
	}))

	// A late failure for a settled participant must be dropped, even
	// with a different reference.
	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventFailed, Reference: "ref-2",
	}))

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	p := sess.Participant("p-1")
	require.Equal(t, session.PaymentPaid, p.PaymentState)
	require.Equal(t, "ref-1", p.PaymentReference)
}

func TestApplyEventFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	_, err := svc.RecordAttempt(ctx, "sess-1", "p-1", 5500)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventFailed, Reference: "ref-1",
	}))

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.PaymentFailed, sess.Participant("p-1").PaymentState)

	// A failed participant can open a fresh attempt.
	attempt, err := svc.RecordAttempt(ctx, "sess-1", "p-1", 5500)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventSucceeded, Reference: attempt.Reference,
	}))
	sess, err = store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.PaymentPaid, sess.Participant("p-1").PaymentState)
}

func TestApplyEventFailureKeepsAttemptReference(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	attempt, err := svc.RecordAttempt(ctx, "sess-1", "p-1", 5500)
	require.NoError(t, err)

	// Only a success settles the reference; a failure leaves the
	// attempt's reference in place.
	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventFailed, Reference: "ref-other",
	}))

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	p := sess.Participant("p-1")
	require.Equal(t, session.PaymentFailed, p.PaymentState)
	require.Equal(t, attempt.Reference, p.PaymentReference)
}

func TestApplyEventStaleFailureDropped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	sess := newTestSession(t, store)
	sess.Participants[0].PaymentState = session.PaymentCanceled
	require.NoError(t, store.Put(ctx, sess))
	svc := newReconciler(store)

	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "p-1",
		Kind: payment.EventFailed, Reference: "ref-9",
	}))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.PaymentCanceled, got.Participant("p-1").PaymentState)
}

func TestApplyEventUnknownTargetsDropped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	newTestSession(t, store)
	svc := newReconciler(store)

	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "missing", ParticipantID: "p-1",
		Kind: payment.EventSucceeded, Reference: "ref-1",
	}))
	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "sess-1", ParticipantID: "missing",
		Kind: payment.EventSucceeded, Reference: "ref-1",
	}))
	require.NoError(t, svc.ApplyEvent(ctx, payment.Event{
		SessionID: "", ParticipantID: "",
		Kind: payment.EventSucceeded, Reference: "ref-1",
	}))

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.PaymentUnpaid, sess.Participant("p-1").PaymentState)
	require.Equal(t, session.PaymentUnpaid, sess.Participant("p-2").PaymentState)
}
