package payments

import (
	"time"

	"github.com/google/uuid"

	internalpayments "github.com/angelmondragon/ticketpay-backend/internal/payments"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// PrepareResponse is what the checkout client needs to open the gateway UI.
type PrepareResponse struct {
	IntentID  uuid.UUID      `json:"intentId"`
	OrderID   string         `json:"orderId"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	OrderName string         `json:"orderName"`
	FlowType  enums.FlowType `json:"flowType"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// ApplicationResponse is the purchase record returned after confirm.
type ApplicationResponse struct {
	ID         uuid.UUID               `json:"id"`
	PartyID    uuid.UUID               `json:"partyId"`
	OrderID    string                  `json:"orderId"`
	Amount     int64                   `json:"amount"`
	Status     enums.ApplicationStatus `json:"status"`
	Message    *string                 `json:"message,omitempty"`
	CanceledAt *time.Time              `json:"canceledAt,omitempty"`
	CreatedAt  time.Time               `json:"createdAt"`
}

// ConfirmResponse wraps the purchase and the payment it settled.
type ConfirmResponse struct {
	Application          ApplicationResponse `json:"application"`
	PaymentTransactionID uuid.UUID           `json:"paymentTransactionId"`
	IntentStatus         enums.IntentStatus  `json:"intentStatus"`
	Replayed             bool                `json:"replayed"`
}

// CancelResponse describes the cancellation outcome.
type CancelResponse struct {
	OrderID           string                   `json:"orderId"`
	IntentStatus      enums.IntentStatus       `json:"intentStatus"`
	ApplicationStatus *enums.ApplicationStatus `json:"applicationStatus,omitempty"`
	RefundAmount      int64                    `json:"refundAmount"`
	CancelFee         int64                    `json:"cancelFee"`
	Policy            enums.RefundPolicy       `json:"policy"`
}

func newPrepareResponse(intent *models.PaymentIntent) PrepareResponse {
	return PrepareResponse{
		IntentID:  intent.ID,
		OrderID:   intent.OrderID,
		Amount:    intent.ExpectedAmount,
		Currency:  intent.Currency,
		OrderName: intent.OrderName,
		FlowType:  intent.FlowType,
		ExpiresAt: intent.ExpiresAt,
	}
}

func newApplicationResponse(app *models.PartyApplication) ApplicationResponse {
	return ApplicationResponse{
		ID:         app.ID,
		PartyID:    app.PartyID,
		OrderID:    app.OrderID,
		Amount:     app.Amount,
		Status:     app.Status,
		Message:    app.Message,
		CanceledAt: app.CanceledAt,
		CreatedAt:  app.CreatedAt,
	}
}

func newConfirmResponse(result *internalpayments.ConfirmResult) ConfirmResponse {
	resp := ConfirmResponse{
		Application:  newApplicationResponse(result.Application),
		IntentStatus: result.Intent.Status,
		Replayed:     !result.Created,
	}
	if result.Transaction != nil {
		resp.PaymentTransactionID = result.Transaction.ID
	}
	return resp
}

func newCancelResponse(result *internalpayments.CancelResult) CancelResponse {
	resp := CancelResponse{
		OrderID:      result.Intent.OrderID,
		IntentStatus: result.Intent.Status,
		RefundAmount: result.RefundAmount,
		CancelFee:    result.CancelFee,
		Policy:       result.Policy,
	}
	if result.Application != nil {
		status := result.Application.Status
		resp.ApplicationStatus = &status
	}
	return resp
}
