package applications

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// Repository persists purchase applications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, application *models.PartyApplication) error
	FindByOrderID(ctx context.Context, orderID string) (*models.PartyApplication, error)
	MarkCanceled(ctx context.Context, orderID string, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an applications repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, application *models.PartyApplication) error {
	return r.db.WithContext(ctx).Create(application).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID string) (*models.PartyApplication, error) {
	var application models.PartyApplication
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&application).Error; err != nil {
		return nil, err
	}
	return &application, nil
}

func (r *repository) MarkCanceled(ctx context.Context, orderID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PartyApplication{}).
		Where("order_id = ? AND status = ?", orderID, enums.ApplicationStatusApplied).
		Updates(map[string]any{
			"status":      enums.ApplicationStatusCanceled,
			"canceled_at": at,
		})
	return result.RowsAffected, result.Error
}
