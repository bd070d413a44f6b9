package sellers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
)

// Repository persists seller payout profiles.
type Repository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.SellerPayoutProfile, error)
	Upsert(ctx context.Context, profile *models.SellerPayoutProfile) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a seller profile repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.SellerPayoutProfile, error) {
	var profile models.SellerPayoutProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Upsert keys on user_id so one seller keeps a single destination row.
func (r *repository) Upsert(ctx context.Context, profile *models.SellerPayoutProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"provider", "provider_seller_id", "kyc_status", "metadata_json", "updated_at"}),
		}).
		Create(profile).Error
}
