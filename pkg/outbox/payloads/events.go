package payloads

import (
	"time"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	"github.com/google/uuid"
)

// PaymentConfirmedEvent is emitted once the purchase application exists and the charge is recorded.
type PaymentConfirmedEvent struct {
	IntentID             uuid.UUID `json:"intentId"`
	OrderID              string    `json:"orderId"`
	PartyID              uuid.UUID `json:"partyId"`
	ApplicationID        uuid.UUID `json:"applicationId"`
	PaymentTransactionID uuid.UUID `json:"paymentTransactionId"`
	BuyerID              uuid.UUID `json:"buyerId"`
	SellerID             uuid.UUID `json:"sellerId"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	ConfirmedAt          time.Time `json:"confirmedAt"`
}

// PaymentCanceledEvent reports a cancellation requested before the purchase completed.
type PaymentCanceledEvent struct {
	IntentID   uuid.UUID          `json:"intentId"`
	OrderID    string             `json:"orderId"`
	BuyerID    uuid.UUID          `json:"buyerId"`
	SellerID   uuid.UUID          `json:"sellerId"`
	Status     enums.IntentStatus `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	CanceledAt time.Time          `json:"canceledAt"`
}

// PaymentCompensatedEvent reports that the system rolled back a charge on its own.
type PaymentCompensatedEvent struct {
	IntentID   uuid.UUID          `json:"intentId"`
	OrderID    string             `json:"orderId"`
	BuyerID    uuid.UUID          `json:"buyerId"`
	SellerID   uuid.UUID          `json:"sellerId"`
	Amount     int64              `json:"amount"`
	Status     enums.IntentStatus `json:"status"`
	Reason     string             `json:"reason"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// PaymentRefundedEvent reports a post-purchase cancellation and the refund it produced.
type PaymentRefundedEvent struct {
	PaymentTransactionID uuid.UUID              `json:"paymentTransactionId"`
	OrderID              string                 `json:"orderId"`
	BuyerID              uuid.UUID              `json:"buyerId"`
	SellerID             uuid.UUID              `json:"sellerId"`
	GrossAmount          int64                  `json:"grossAmount"`
	RefundAmount         int64                  `json:"refundAmount"`
	CancelFee            int64                  `json:"cancelFee"`
	Policy               enums.RefundPolicy     `json:"policy"`
	Reason               enums.CancelReasonType `json:"reason"`
	AfterSettlement      bool                   `json:"afterSettlement"`
	CanceledAt           time.Time              `json:"canceledAt"`
}

// IntentExpiredEvent is emitted when reconciliation expires an abandoned intent.
type IntentExpiredEvent struct {
	IntentID  uuid.UUID `json:"intentId"`
	OrderID   string    `json:"orderId"`
	BuyerID   uuid.UUID `json:"buyerId"`
	PartyID   uuid.UUID `json:"partyId"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// PayoutCompletedEvent tells the seller their proceeds were sent.
type PayoutCompletedEvent struct {
	PayoutID             uuid.UUID `json:"payoutId"`
	PaymentTransactionID uuid.UUID `json:"paymentTransactionId"`
	SellerID             uuid.UUID `json:"sellerId"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	ProviderRef          string    `json:"providerRef"`
	CompletedAt          time.Time `json:"completedAt"`
}

// PayoutFailedEvent is the operational alert raised when a payout needs manual handling.
type PayoutFailedEvent struct {
	PayoutID             uuid.UUID `json:"payoutId"`
	PaymentTransactionID uuid.UUID `json:"paymentTransactionId"`
	SellerID             uuid.UUID `json:"sellerId"`
	Amount               int64     `json:"amount"`
	RetryCount           int       `json:"retryCount"`
	FailureCode          string    `json:"failureCode,omitempty"`
	FailReason           string    `json:"failReason,omitempty"`
	FailedAt             time.Time `json:"failedAt"`
}
