package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/ticketpay-backend/internal/payouts"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type fakeIntentStore struct {
	stale     []models.PaymentIntent
	limit     int
	results   map[string]enums.IntentStatus
	failures  map[string]error
	reconcile []string
	deferred  []string
}

func (f *fakeIntentStore) ListStale(_ context.Context, limit int) ([]models.PaymentIntent, error) {
	f.limit = limit
	return f.stale, nil
}

func (f *fakeIntentStore) Defer(_ context.Context, orderID string) error {
	f.deferred = append(f.deferred, orderID)
	return nil
}

func (f *fakeIntentStore) ReconcileIntent(_ context.Context, orderID string) (*models.PaymentIntent, error) {
	f.reconcile = append(f.reconcile, orderID)
	if err := f.failures[orderID]; err != nil {
		return nil, err
	}
	return &models.PaymentIntent{OrderID: orderID, Status: f.results[orderID]}, nil
}

func TestIntentReconcileJobContinuesPastFailures(t *testing.T) {
	store := &fakeIntentStore{
		stale: []models.PaymentIntent{{OrderID: "ORD-1"}, {OrderID: "ORD-2"}, {OrderID: "ORD-3"}},
		results: map[string]enums.IntentStatus{
			"ORD-1": enums.IntentStatusExpired,
			"ORD-3": enums.IntentStatusCanceled,
		},
		failures: map[string]error{"ORD-2": errors.New("gateway down")},
	}
	job, err := NewIntentReconcileJob(IntentReconcileJobParams{
		Logger:     testLogger(),
		Intents:    store,
		Reconciler: store,
		BatchSize:  25,
	})
	if err != nil {
		t.Fatalf("NewIntentReconcileJob: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected sweep error")
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected 1 error, got %d", got)
	}
	if len(store.reconcile) != 3 {
		t.Fatalf("expected every intent reconciled, got %v", store.reconcile)
	}
	if store.limit != 25 {
		t.Fatalf("expected batch size 25, got %d", store.limit)
	}
}

func TestIntentReconcileJobDefersTransientFailures(t *testing.T) {
	store := &fakeIntentStore{
		stale:   []models.PaymentIntent{{OrderID: "ORD-1"}, {OrderID: "ORD-2"}, {OrderID: "ORD-3"}},
		results: map[string]enums.IntentStatus{"ORD-3": enums.IntentStatusExpired},
		failures: map[string]error{
			"ORD-1": pkgerrors.New(pkgerrors.CodeDependency, "gateway unavailable"),
			"ORD-2": pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent is CANCEL_FAILED"),
		},
	}
	job, err := NewIntentReconcileJob(IntentReconcileJobParams{
		Logger:     testLogger(),
		Intents:    store,
		Reconciler: store,
	})
	if err != nil {
		t.Fatalf("NewIntentReconcileJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error")
	}
	if len(store.deferred) != 1 || store.deferred[0] != "ORD-1" {
		t.Fatalf("expected only the transient failure deferred, got %v", store.deferred)
	}
}

func TestIntentReconcileJobRequiresDependencies(t *testing.T) {
	if _, err := NewIntentReconcileJob(IntentReconcileJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without lister")
	}
}

type fakePayouts struct {
	due       []models.PayoutTransaction
	pending   []models.PaymentTransaction
	cutoff    time.Time
	retried   []uuid.UUID
	requested []uuid.UUID
	retryFn   func(uuid.UUID) (*models.PayoutTransaction, error)
	requestFn func(uuid.UUID) (*models.PayoutTransaction, error)
}

func (f *fakePayouts) ListDue(context.Context, int) ([]models.PayoutTransaction, error) {
	return f.due, nil
}

func (f *fakePayouts) ListAwaitingSettlement(_ context.Context, createdBefore time.Time, _ int) ([]models.PaymentTransaction, error) {
	f.cutoff = createdBefore
	return f.pending, nil
}

func (f *fakePayouts) RetryPayout(_ context.Context, id uuid.UUID) (*models.PayoutTransaction, error) {
	f.retried = append(f.retried, id)
	return f.retryFn(id)
}

func (f *fakePayouts) RequestPayout(_ context.Context, id uuid.UUID) (*models.PayoutTransaction, error) {
	f.requested = append(f.requested, id)
	return f.requestFn(id)
}

func TestPayoutRetryJobSkipsRowsMovedElsewhere(t *testing.T) {
	moved := uuid.New()
	fake := &fakePayouts{
		due: []models.PayoutTransaction{{ID: uuid.New()}, {ID: moved}},
		retryFn: func(id uuid.UUID) (*models.PayoutTransaction, error) {
			if id == moved {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout is not retryable").WithReason(payouts.ReasonNotRetryable)
			}
			return &models.PayoutTransaction{ID: id, Status: enums.PayoutStatusRetryScheduled}, nil
		},
	}
	job, err := NewPayoutRetryJob(PayoutRetryJobParams{Logger: testLogger(), Due: fake, Payouts: fake})
	if err != nil {
		t.Fatalf("NewPayoutRetryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fake.retried) != 2 {
		t.Fatalf("expected 2 retries, got %d", len(fake.retried))
	}
}

func TestPayoutRetryJobReportsProviderErrors(t *testing.T) {
	fake := &fakePayouts{
		due: []models.PayoutTransaction{{ID: uuid.New()}},
		retryFn: func(uuid.UUID) (*models.PayoutTransaction, error) {
			return nil, errors.New("db unavailable")
		},
	}
	job, err := NewPayoutRetryJob(PayoutRetryJobParams{Logger: testLogger(), Due: fake, Payouts: fake})
	if err != nil {
		t.Fatalf("NewPayoutRetryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSettlementJobAppliesHold(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	unonboarded := uuid.New()
	fake := &fakePayouts{
		pending: []models.PaymentTransaction{{ID: uuid.New()}, {ID: unonboarded}},
		requestFn: func(id uuid.UUID) (*models.PayoutTransaction, error) {
			if id == unonboarded {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller has no payout profile").WithReason(payouts.ReasonSellerNotOnboarded)
			}
			return &models.PayoutTransaction{PaymentTransactionID: id, Status: enums.PayoutStatusCompleted}, nil
		},
	}
	jobIface, err := NewSettlementJob(SettlementJobParams{
		Logger:       testLogger(),
		Transactions: fake,
		Payouts:      fake,
		Hold:         24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSettlementJob: %v", err)
	}
	job := jobIface.(*settlementJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !fake.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, fake.cutoff)
	}
	if len(fake.requested) != 2 {
		t.Fatalf("expected 2 payout requests, got %d", len(fake.requested))
	}
}

func TestSettlementJobRejectsNegativeHold(t *testing.T) {
	fake := &fakePayouts{}
	if _, err := NewSettlementJob(SettlementJobParams{Logger: testLogger(), Transactions: fake, Payouts: fake, Hold: -time.Minute}); err == nil {
		t.Fatal("expected error")
	}
}
