package enums

import "slices"

// FlowType distinguishes a deposit hold from a full-price purchase.
type FlowType string

const (
	FlowTypeDeposit FlowType = "DEPOSIT"
	FlowTypeFull    FlowType = "FULL"
)

var validFlowTypes = []FlowType{
	FlowTypeDeposit,
	FlowTypeFull,
}

// String implements fmt.Stringer.
func (f FlowType) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FlowType.
func (f FlowType) IsValid() bool {
	return slices.Contains(validFlowTypes, f)
}

// ParseFlowType converts raw input into a FlowType.
func ParseFlowType(value string) (FlowType, error) {
	return parse(validFlowTypes, value, "flow type")
}
