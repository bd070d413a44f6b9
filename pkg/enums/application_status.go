package enums

import "slices"

// ApplicationStatus is the state of a purchase application.
type ApplicationStatus string

const (
	ApplicationStatusApplied  ApplicationStatus = "APPLIED"
	ApplicationStatusCanceled ApplicationStatus = "CANCELED"
)

var validApplicationStatuses = []ApplicationStatus{
	ApplicationStatusApplied,
	ApplicationStatusCanceled,
}

// String implements fmt.Stringer.
func (a ApplicationStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ApplicationStatus.
func (a ApplicationStatus) IsValid() bool {
	return slices.Contains(validApplicationStatuses, a)
}

// ParseApplicationStatus converts raw input into a ApplicationStatus.
func ParseApplicationStatus(value string) (ApplicationStatus, error) {
	return parse(validApplicationStatuses, value, "application status")
}
