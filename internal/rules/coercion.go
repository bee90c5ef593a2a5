// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"reflect"
)

/*
 * Value classification for comparators.
 *
 * There is no implicit coercion between kinds. Answers arrive from JSON
 * (float64), YAML (int) or Go callers (any numeric kind), so numeric kinds are
 * unified to float64; everything else compares as-is.
 *
 * Strict rules:
 *   - Numeric: every Go int/uint/float kind and json.Number. Strings are never
 *     parsed ("75" is not 75) and booleans are not numbers.
 *   - Sequence: any slice or array. Strings are not sequences.
 *   - Equality: numeric on both sides -> numeric equality; otherwise deep
 *     equality, so []any{"a"} equals []any{"a"} without panicking.
 */

// toFloat64 converts v to float64 if it is a numeric kind.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// asNumbers converts both values to float64. ok is false unless both are numeric.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// compareEqual performs equality with numeric unification and no other coercion.
func compareEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	if _, ok := toFloat64(a); ok {
		return false
	}
	if _, ok := toFloat64(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// asSequence returns the elements of a slice or array value.
// ok is false for every non-sequence, including strings and nil.
func asSequence(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
