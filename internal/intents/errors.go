package intents

import (
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
)

// Stable reasons carried in error details.
const (
	ReasonIntentNotFound     = "INTENT_NOT_FOUND"
	ReasonAlreadyTerminal    = "INTENT_ALREADY_TERMINAL"
	ReasonIntentExpired      = "INTENT_EXPIRED"
	ReasonPaymentKeyMismatch = "PAYMENT_KEY_MISMATCH"
	ReasonAmountMismatch     = "AMOUNT_MISMATCH"
	ReasonPriceChanged       = "PRICE_CHANGED"
	ReasonPaymentNotDone     = "PAYMENT_NOT_DONE"
	ReasonListingNotPayable  = "LISTING_NOT_PAYABLE"
	ReasonSelfPurchase       = "SELF_PURCHASE"
	ReasonCancelInProgress   = "CANCEL_IN_PROGRESS"
)

func errIntentNotFound(orderID string) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "payment intent %s not found", orderID).
		WithReason(ReasonIntentNotFound)
}

func errAlreadyTerminal(status enums.IntentStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "payment intent is %s", status).
		WithDetails(map[string]any{"reason": ReasonAlreadyTerminal, "status": status})
}

func errIntentExpired() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent expired; prepare a new payment").
		WithReason(ReasonIntentExpired)
}

func errKeyMismatch() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order already confirmed with a different payment key").
		WithReason(ReasonPaymentKeyMismatch)
}

func errAmountMismatch(expected, reported int64) error {
	return pkgerrors.New(pkgerrors.CodeAmountMismatch, "payment amount does not match the prepared amount").
		WithDetails(map[string]any{"reason": ReasonAmountMismatch, "expected": expected, "reported": reported})
}

func errPaymentNotDone(status string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payment was not completed by the provider").
		WithDetails(map[string]any{"reason": ReasonPaymentNotDone, "provider_status": status})
}

func errPriceChanged() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "listing price changed; prepare a new payment").
		WithReason(ReasonPriceChanged)
}

func errNotPayable(message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).WithReason(ReasonListingNotPayable)
}

func errNotOwner() error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "payment intent belongs to another user")
}

func errCancelInProgress(status enums.IntentStatus) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "payment cancellation already in progress").
		WithDetails(map[string]any{"reason": ReasonCancelInProgress, "status": status})
}
