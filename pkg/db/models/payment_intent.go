package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// PaymentIntent reserves an expected charge before any money moves.
type PaymentIntent struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           string             `gorm:"column:order_id;not null;uniqueIndex:uq_payment_intents_order_id"`
	PartyID           uuid.UUID          `gorm:"column:party_id;type:uuid;not null"`
	ApplicantID       uuid.UUID          `gorm:"column:applicant_id;type:uuid;not null"`
	SellerID          uuid.UUID          `gorm:"column:seller_id;type:uuid;not null"`
	ExpectedAmount    int64              `gorm:"column:expected_amount;not null"`
	Currency          string             `gorm:"column:currency;not null;default:'KRW'"`
	OrderName         string             `gorm:"column:order_name;not null"`
	FlowType          enums.FlowType     `gorm:"column:flow_type;type:text;not null"`
	PaymentType       string             `gorm:"column:payment_type;not null;default:'CARD'"`
	Mode              enums.IntentMode   `gorm:"column:mode;type:text;not null;default:'PREPARED'"`
	Status            enums.IntentStatus `gorm:"column:status;type:text;not null;default:'PREPARED'"`
	GatewayPaymentKey *string            `gorm:"column:gateway_payment_key"`
	AttemptedKey      *string            `gorm:"column:attempted_payment_key"`
	PaymentMethod     *string            `gorm:"column:payment_method"`
	FailureCode       *string            `gorm:"column:failure_code"`
	FailureMessage    *string            `gorm:"column:failure_message"`
	ExpiresAt         time.Time          `gorm:"column:expires_at;not null"`
	ConfirmedAt       *time.Time         `gorm:"column:confirmed_at"`
	CanceledAt        *time.Time         `gorm:"column:canceled_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
