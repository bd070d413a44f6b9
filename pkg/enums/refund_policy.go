package enums

import "slices"

// RefundPolicy names the rule used to split a cancellation.
type RefundPolicy string

const (
	RefundPolicyFull           RefundPolicy = "FULL_REFUND"
	RefundPolicyPartialWithFee RefundPolicy = "PARTIAL_REFUND_WITH_FEE"
)

var validRefundPolicys = []RefundPolicy{
	RefundPolicyFull,
	RefundPolicyPartialWithFee,
}

// String implements fmt.Stringer.
func (r RefundPolicy) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundPolicy.
func (r RefundPolicy) IsValid() bool {
	return slices.Contains(validRefundPolicys, r)
}

// ParseRefundPolicy converts raw input into a RefundPolicy.
func ParseRefundPolicy(value string) (RefundPolicy, error) {
	return parse(validRefundPolicys, value, "refund policy")
}
