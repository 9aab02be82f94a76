package types

import (
	"fmt"
	"log/slog"
)

// As returns the Go representation of v as T. T is one of the types listed
// on Value.Interface. The second result is false, and a warning is logged,
// when v holds a different kind.
func As[T any](v Value) (T, bool) {
	var zeroT T
	if v.IsNull() {
		return zeroT, false
	}
	typed, ok := v.Interface().(T)
	if !ok {
		slog.Warn("types.As: value is not of the expected type", "expected", fmt.Sprintf("%T", zeroT), "kind", v.Kind().String())
		return zeroT, false
	}
	return typed, true
}
