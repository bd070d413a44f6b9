package enums

import "slices"

// SettlementStatus tracks seller settlement for a transaction.
type SettlementStatus string

const (
	SettlementStatusPending                 SettlementStatus = "PENDING"
	SettlementStatusRequested               SettlementStatus = "REQUESTED"
	SettlementStatusCompleted               SettlementStatus = "COMPLETED"
	SettlementStatusFailed                  SettlementStatus = "FAILED"
	SettlementStatusSkipped                 SettlementStatus = "SKIPPED"
	SettlementStatusRefundedAfterSettlement SettlementStatus = "REFUNDED_AFTER_SETTLEMENT"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusPending,
	SettlementStatusRequested,
	SettlementStatusCompleted,
	SettlementStatusFailed,
	SettlementStatusSkipped,
	SettlementStatusRefundedAfterSettlement,
}

// String implements fmt.Stringer.
func (s SettlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementStatus.
func (s SettlementStatus) IsValid() bool {
	return slices.Contains(validSettlementStatuses, s)
}

// ParseSettlementStatus converts raw input into a SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	return parse(validSettlementStatuses, value, "settlement status")
}

var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementStatusPending:   {SettlementStatusRequested, SettlementStatusSkipped, SettlementStatusFailed},
	SettlementStatusRequested: {SettlementStatusRequested, SettlementStatusCompleted, SettlementStatusFailed, SettlementStatusSkipped},
	SettlementStatusFailed:    {SettlementStatusRequested},
	SettlementStatusCompleted: {SettlementStatusRefundedAfterSettlement},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	return slices.Contains(settlementTransitions[s], next)
}

// IsSettled reports whether seller funds already moved.
func (s SettlementStatus) IsSettled() bool {
	return s == SettlementStatusCompleted || s == SettlementStatusRefundedAfterSettlement
}
