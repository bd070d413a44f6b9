package enums

import "slices"

// PartyStatus is the listing lifecycle state.
type PartyStatus string

const (
	PartyStatusOpen     PartyStatus = "OPEN"
	PartyStatusClosed   PartyStatus = "CLOSED"
	PartyStatusCanceled PartyStatus = "CANCELED"
)

var validPartyStatuses = []PartyStatus{
	PartyStatusOpen,
	PartyStatusClosed,
	PartyStatusCanceled,
}

// String implements fmt.Stringer.
func (p PartyStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PartyStatus.
func (p PartyStatus) IsValid() bool {
	return slices.Contains(validPartyStatuses, p)
}

// ParsePartyStatus converts raw input into a PartyStatus.
func ParsePartyStatus(value string) (PartyStatus, error) {
	return parse(validPartyStatuses, value, "party status")
}
