package payments

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/api/validators"
	"github.com/angelmondragon/ticketpay-backend/internal/intents"
	internalpayments "github.com/angelmondragon/ticketpay-backend/internal/payments"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

const maxReasonLen = 500

type prepareRequest struct {
	PartyID     string `json:"partyId" validate:"required,uuid"`
	FlowType    string `json:"flowType" validate:"required,oneof=DEPOSIT FULL"`
	PaymentType string `json:"paymentType" validate:"omitempty,max=32"`
}

type confirmRequest struct {
	PaymentKey string `json:"paymentKey" validate:"required,max=200"`
	OrderID    string `json:"orderId" validate:"required,orderid"`
	IntentID   string `json:"intentId" validate:"omitempty,uuid"`
	Amount     int64  `json:"amount" validate:"gt=0"`
	Message    string `json:"message" validate:"max=500"`
}

type cancelRequest struct {
	OrderID    string `json:"orderId" validate:"required,orderid"`
	ReasonType string `json:"reasonType" validate:"omitempty,max=64"`
	Reason     string `json:"reason" validate:"max=500"`
}

func toPrepareInput(payload prepareRequest, buyerID uuid.UUID) intents.PrepareInput {
	return intents.PrepareInput{
		PartyID:     uuid.MustParse(payload.PartyID),
		ApplicantID: buyerID,
		FlowType:    enums.FlowType(payload.FlowType),
		PaymentType: strings.TrimSpace(payload.PaymentType),
	}
}

func toConfirmInput(payload confirmRequest, buyerID uuid.UUID) internalpayments.ConfirmInput {
	input := internalpayments.ConfirmInput{
		OrderID:    strings.TrimSpace(payload.OrderID),
		PaymentKey: strings.TrimSpace(payload.PaymentKey),
		Amount:     payload.Amount,
		BuyerID:    buyerID,
		Message:    payload.Message,
	}
	if payload.IntentID != "" {
		input.IntentID = uuid.MustParse(payload.IntentID)
	}
	return input
}

func toCancelInput(payload cancelRequest, buyerID uuid.UUID) internalpayments.CancelInput {
	return internalpayments.CancelInput{
		OrderID:    strings.TrimSpace(payload.OrderID),
		BuyerID:    buyerID,
		ReasonType: enums.CancelReasonType(strings.TrimSpace(payload.ReasonType)),
		Reason:     validators.CleanText(payload.Reason, maxReasonLen),
	}
}
