package enums

import (
	"fmt"
	"slices"
)

// parse returns value as a T when it is one of known.
func parse[T ~string](known []T, value, kind string) (T, error) {
	if v := T(value); slices.Contains(known, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
