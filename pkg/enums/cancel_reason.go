package enums

import "slices"

// CancelReasonType classifies why a payment was canceled.
type CancelReasonType string

const (
	CancelReasonBuyerChangedMind  CancelReasonType = "BUYER_CHANGED_MIND"
	CancelReasonSellerChangedMind CancelReasonType = "SELLER_CHANGED_MIND"
	CancelReasonEventCanceled     CancelReasonType = "EVENT_CANCELED"
	CancelReasonAmountMismatch    CancelReasonType = "AMOUNT_MISMATCH"
	CancelReasonCompensation      CancelReasonType = "SYSTEM_COMPENSATION"
	CancelReasonExpired           CancelReasonType = "EXPIRED"
	CancelReasonOther             CancelReasonType = "OTHER"
)

var validCancelReasonTypes = []CancelReasonType{
	CancelReasonBuyerChangedMind,
	CancelReasonSellerChangedMind,
	CancelReasonEventCanceled,
	CancelReasonAmountMismatch,
	CancelReasonCompensation,
	CancelReasonExpired,
	CancelReasonOther,
}

// String implements fmt.Stringer.
func (c CancelReasonType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancelReasonType.
func (c CancelReasonType) IsValid() bool {
	return slices.Contains(validCancelReasonTypes, c)
}

// ParseCancelReasonType converts raw input into a CancelReasonType.
func ParseCancelReasonType(value string) (CancelReasonType, error) {
	return parse(validCancelReasonTypes, value, "cancel reason type")
}
