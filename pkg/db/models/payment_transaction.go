package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// PaymentTransaction is the ledger row for one confirmed charge.
// NetAmount always equals GrossAmount - FeeAmount - RefundAmount.
type PaymentTransaction struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	PartyID             uuid.UUID               `gorm:"column:party_id;type:uuid;not null"`
	ApplicationID       uuid.UUID               `gorm:"column:application_id;type:uuid;not null"`
	BuyerUserID         uuid.UUID               `gorm:"column:buyer_user_id;type:uuid;not null"`
	SellerUserID        uuid.UUID               `gorm:"column:seller_user_id;type:uuid;not null"`
	FlowType            enums.FlowType          `gorm:"column:flow_type;type:text;not null"`
	OrderID             string                  `gorm:"column:order_id;not null;uniqueIndex:uq_payment_transactions_order_id"`
	GatewayPaymentKey   string                  `gorm:"column:gateway_payment_key;not null;uniqueIndex:uq_payment_transactions_payment_key"`
	Currency            string                  `gorm:"column:currency;not null;default:'KRW'"`
	GrossAmount         int64                   `gorm:"column:gross_amount;not null"`
	FeeAmount           int64                   `gorm:"column:fee_amount;not null;default:0"`
	RefundAmount        int64                   `gorm:"column:refund_amount;not null;default:0"`
	NetAmount           int64                   `gorm:"column:net_amount;not null"`
	PaymentStatus       enums.PaymentStatus     `gorm:"column:payment_status;type:text;not null;default:'PAID'"`
	SettlementStatus    enums.SettlementStatus  `gorm:"column:settlement_status;type:text;not null;default:'PENDING'"`
	CancelReasonType    *enums.CancelReasonType `gorm:"column:cancel_reason_type;type:text"`
	CancelMemo          *string                 `gorm:"column:cancel_memo"`
	RefundPolicyApplied *enums.RefundPolicy     `gorm:"column:refund_policy_applied;type:text"`
	CanceledAt          *time.Time              `gorm:"column:canceled_at"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// RecomputeNet restores the ledger identity after any amount change.
func (t *PaymentTransaction) RecomputeNet() {
	t.NetAmount = t.GrossAmount - t.FeeAmount - t.RefundAmount
}
