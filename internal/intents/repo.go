package intents

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// Repository persists payment intents. FindForUpdate must run inside a transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	FindForUpdate(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	Save(ctx context.Context, intent *models.PaymentIntent) error
	ListStale(ctx context.Context, expiredBefore, idleBefore time.Time, limit int) ([]models.PaymentIntent, error)
	Touch(ctx context.Context, orderID string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an intents repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindForUpdate(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) Save(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

// ListStale returns PREPARED intents that expired before expiredBefore, and
// CONFIRMED or CANCEL_REQUESTED intents untouched since idleBefore. Rows come
// least recently touched first.
func (r *repository) ListStale(ctx context.Context, expiredBefore, idleBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	var rows []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("(status = ? AND expires_at < ?) OR (status IN ? AND updated_at < ?)",
			enums.IntentStatusPrepared, expiredBefore,
			[]enums.IntentStatus{enums.IntentStatusConfirmed, enums.IntentStatusCancelRequested}, idleBefore).
		Order("updated_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Touch bumps updated_at on a non-terminal intent without running hooks.
func (r *repository) Touch(ctx context.Context, orderID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("order_id = ? AND status IN ?", orderID, []enums.IntentStatus{
			enums.IntentStatusPrepared,
			enums.IntentStatusConfirmed,
			enums.IntentStatusCancelRequested,
		}).
		UpdateColumn("updated_at", at).Error
}
