package enums

import "slices"

// PayoutStatus is the state of a payout attempt row.
type PayoutStatus string

const (
	PayoutStatusPending        PayoutStatus = "PENDING"
	PayoutStatusRequested      PayoutStatus = "REQUESTED"
	PayoutStatusRetryScheduled PayoutStatus = "RETRY_SCHEDULED"
	PayoutStatusCompleted      PayoutStatus = "COMPLETED"
	PayoutStatusFailed         PayoutStatus = "FAILED"
	PayoutStatusSkipped        PayoutStatus = "SKIPPED"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusRequested,
	PayoutStatusRetryScheduled,
	PayoutStatusCompleted,
	PayoutStatusFailed,
	PayoutStatusSkipped,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	return slices.Contains(validPayoutStatuses, p)
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return parse(validPayoutStatuses, value, "payout status")
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:        {PayoutStatusRequested, PayoutStatusSkipped},
	PayoutStatusRequested:      {PayoutStatusRequested, PayoutStatusCompleted, PayoutStatusRetryScheduled, PayoutStatusFailed, PayoutStatusSkipped},
	PayoutStatusRetryScheduled: {PayoutStatusRequested, PayoutStatusSkipped},
}

// CanTransitionTo reports whether next is a legal successor of p.
func (p PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	return slices.Contains(payoutTransitions[p], next)
}

// IsTerminal reports whether the payout needs no further automated work.
func (p PayoutStatus) IsTerminal() bool {
	return len(payoutTransitions[p]) == 0
}
