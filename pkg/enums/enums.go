// Package enums holds the string enums shared by the API, the database and the
// event stream. Each value list mirrors a Postgres enum type.
package enums

import (
	"fmt"
	"slices"
)

func parse[T ~string](kind string, valid []T, value string) (T, error) {
	if v := T(value); slices.Contains(valid, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
