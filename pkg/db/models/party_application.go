package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// PartyApplication is the purchase record created once a payment confirms.
type PartyApplication struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	PartyID     uuid.UUID               `gorm:"column:party_id;type:uuid;not null"`
	ApplicantID uuid.UUID               `gorm:"column:applicant_id;type:uuid;not null"`
	OrderID     string                  `gorm:"column:order_id;not null;uniqueIndex:uq_party_applications_order_id"`
	PaymentKey  string                  `gorm:"column:payment_key;not null"`
	Amount      int64                   `gorm:"column:amount;not null"`
	Status      enums.ApplicationStatus `gorm:"column:status;type:text;not null;default:'APPLIED'"`
	Message     *string                 `gorm:"column:message"`
	CanceledAt  *time.Time              `gorm:"column:canceled_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
