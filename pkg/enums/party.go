package enums

import "slices"

// PartyMode states whether a party recruits members or sells a ticket slot.
type PartyMode string

const (
	PartyModeRecruiting PartyMode = "RECRUITING"
	PartyModeSelling    PartyMode = "SELLING"
)

var validPartyModes = []PartyMode{
	PartyModeRecruiting,
	PartyModeSelling,
}

// String implements fmt.Stringer.
func (p PartyMode) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PartyMode.
func (p PartyMode) IsValid() bool {
	return slices.Contains(validPartyModes, p)
}

// ParsePartyMode converts raw input into a PartyMode.
func ParsePartyMode(value string) (PartyMode, error) {
	return parse(validPartyModes, value, "party mode")
}
