package enums

import "slices"

// IntentStatus is the lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentStatusPrepared           IntentStatus = "PREPARED"
	IntentStatusConfirmed          IntentStatus = "CONFIRMED"
	IntentStatusApplicationCreated IntentStatus = "APPLICATION_CREATED"
	IntentStatusExpired            IntentStatus = "EXPIRED"
	IntentStatusCancelRequested    IntentStatus = "CANCEL_REQUESTED"
	IntentStatusCanceled           IntentStatus = "CANCELED"
	IntentStatusCancelFailed       IntentStatus = "CANCEL_FAILED"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusPrepared,
	IntentStatusConfirmed,
	IntentStatusApplicationCreated,
	IntentStatusExpired,
	IntentStatusCancelRequested,
	IntentStatusCanceled,
	IntentStatusCancelFailed,
}

// String implements fmt.Stringer.
func (i IntentStatus) String() string {
	return string(i)
}

// IsValid reports whether the value is a known IntentStatus.
func (i IntentStatus) IsValid() bool {
	return slices.Contains(validIntentStatuses, i)
}

// ParseIntentStatus converts raw input into a IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	return parse(validIntentStatuses, value, "intent status")
}

var intentTransitions = map[IntentStatus][]IntentStatus{
	IntentStatusPrepared:        {IntentStatusConfirmed, IntentStatusExpired, IntentStatusCancelRequested},
	IntentStatusConfirmed:       {IntentStatusApplicationCreated, IntentStatusCancelRequested},
	IntentStatusCancelRequested: {IntentStatusCanceled, IntentStatusCancelFailed},
}

// CanTransitionTo reports whether next is a legal successor of i.
func (i IntentStatus) CanTransitionTo(next IntentStatus) bool {
	return slices.Contains(intentTransitions[i], next)
}

// IsTerminal reports whether no further transition is possible.
func (i IntentStatus) IsTerminal() bool {
	return len(intentTransitions[i]) == 0
}

// IsConfirmable reports whether a confirm call may proceed.
func (i IntentStatus) IsConfirmable() bool {
	return i == IntentStatusPrepared || i == IntentStatusConfirmed
}
