package enums

import "slices"

// IntentMode records how an intent entered the system.
type IntentMode string

const (
	IntentModePrepared IntentMode = "PREPARED"
	IntentModeLegacy   IntentMode = "LEGACY"
)

var validIntentModes = []IntentMode{
	IntentModePrepared,
	IntentModeLegacy,
}

// String implements fmt.Stringer.
func (i IntentMode) String() string {
	return string(i)
}

// IsValid reports whether the value is a known IntentMode.
func (i IntentMode) IsValid() bool {
	return slices.Contains(validIntentModes, i)
}

// ParseIntentMode converts raw input into a IntentMode.
func ParseIntentMode(value string) (IntentMode, error) {
	return parse(validIntentModes, value, "intent mode")
}
