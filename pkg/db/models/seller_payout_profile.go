package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// SellerPayoutProfile is the seller's registered payout destination.
type SellerPayoutProfile struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Provider         string          `gorm:"column:provider;not null"`
	ProviderSellerID string          `gorm:"column:provider_seller_id;not null"`
	KYCStatus        enums.KYCStatus `gorm:"column:kyc_status;type:text;not null;default:'PENDING'"`
	MetadataJSON     json.RawMessage `gorm:"column:metadata_json;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
