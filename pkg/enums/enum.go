// Package enums holds the string-backed value sets stored in text columns.
package enums

import (
	"fmt"
	"slices"
)

// parse returns raw as T when it is one of valid; kind names the set in the
// error message.
func parse[T ~string](valid []T, raw, kind string) (T, error) {
	if v := T(raw); slices.Contains(valid, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
