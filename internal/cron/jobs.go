package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
)

const defaultBatchSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type staleIntentLister interface {
	ListStale(ctx context.Context, limit int) ([]models.PaymentIntent, error)
	Defer(ctx context.Context, orderID string) error
}

type intentReconciler interface {
	ReconcileIntent(ctx context.Context, orderID string) (*models.PaymentIntent, error)
}

type duePayoutLister interface {
	ListDue(ctx context.Context, limit int) ([]models.PayoutTransaction, error)
}

type payoutRequester interface {
	RequestPayout(ctx context.Context, paymentTransactionID uuid.UUID) (*models.PayoutTransaction, error)
	RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error)
}

type settlementLister interface {
	ListAwaitingSettlement(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentTransaction, error)
}
