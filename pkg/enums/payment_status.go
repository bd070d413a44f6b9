package enums

import "slices"

// PaymentStatus tracks the charge state of a recorded transaction.
type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "PAID"
	PaymentStatusPartiallyCanceled PaymentStatus = "PARTIALLY_CANCELED"
	PaymentStatusCanceled          PaymentStatus = "CANCELED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPaid,
	PaymentStatusPartiallyCanceled,
	PaymentStatusCanceled,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	return slices.Contains(validPaymentStatuses, p)
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(validPaymentStatuses, value, "payment status")
}

// IsCanceled reports whether any refund has been recorded.
func (p PaymentStatus) IsCanceled() bool {
	return p == PaymentStatusCanceled || p == PaymentStatusPartiallyCanceled
}
