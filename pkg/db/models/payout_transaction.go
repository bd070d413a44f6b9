package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// PayoutTransaction is the authoritative payout attempt for a transaction.
// Retries mutate the same row; RetryCount only increases.
type PayoutTransaction struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PaymentTransactionID uuid.UUID          `gorm:"column:payment_transaction_id;type:uuid;not null;index"`
	SellerID             uuid.UUID          `gorm:"column:seller_id;type:uuid;not null"`
	RequestedAmount      int64              `gorm:"column:requested_amount;not null"`
	Currency             string             `gorm:"column:currency;not null;default:'KRW'"`
	Status               enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	ProviderRef          *string            `gorm:"column:provider_ref"`
	RequestedAt          *time.Time         `gorm:"column:requested_at"`
	LastRetryAt          *time.Time         `gorm:"column:last_retry_at"`
	NextRetryAt          *time.Time         `gorm:"column:next_retry_at"`
	RetryCount           int                `gorm:"column:retry_count;not null;default:0"`
	CompletedAt          *time.Time         `gorm:"column:completed_at"`
	FailReason           *string            `gorm:"column:fail_reason"`
	FailureCode          *string            `gorm:"column:failure_code"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
