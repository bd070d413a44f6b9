package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// Repository persists payout attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.PayoutTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutTransaction, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PayoutTransaction, error)
	LatestForTransaction(ctx context.Context, paymentTransactionID uuid.UUID) (*models.PayoutTransaction, error)
	Save(ctx context.Context, payout *models.PayoutTransaction) error
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]models.PayoutTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the payouts repository to a database handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.PayoutTransaction) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutTransaction, error) {
	var payout models.PayoutTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PayoutTransaction, error) {
	var payout models.PayoutTransaction
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// LatestForTransaction returns the authoritative payout row for a transaction.
func (r *repository) LatestForTransaction(ctx context.Context, paymentTransactionID uuid.UUID) (*models.PayoutTransaction, error) {
	var payout models.PayoutTransaction
	if err := r.db.WithContext(ctx).
		Where("payment_transaction_id = ?", paymentTransactionID).
		Order("created_at DESC").
		Order("id DESC").
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) Save(ctx context.Context, payout *models.PayoutTransaction) error {
	return r.db.WithContext(ctx).Save(payout).Error
}

// ListDue returns scheduled retries whose time has come and requests that
// never heard back from the provider.
func (r *repository) ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]models.PayoutTransaction, error) {
	var rows []models.PayoutTransaction
	err := r.db.WithContext(ctx).
		Where("(status = ? AND next_retry_at <= ?) OR (status = ? AND requested_at < ?)",
			enums.PayoutStatusRetryScheduled, now,
			enums.PayoutStatusRequested, staleBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
