package trait

import (
	"fmt"
	"math"
)

// Coerce converts a decoded wire value to the key's declared type.
//
// Coercion rules:
//   - Numeric values (float64, float32, int, int64, uint64) convert freely
//     between TypeFloat and TypeInt, except that a float with a fractional
//     part is rejected for TypeInt rather than truncated.
//   - Booleans coerce to 1/0 for numeric types; the numerics 0 and 1 coerce
//     to booleans. Other numbers are not valid booleans.
//   - Strings, arrays ([]any) and maps (map[string]any) require an exact
//     type match.
//   - nil is rejected for every type.
//
// All failures wrap ErrInvalidValue and name the key and offending value.
func (k PropertyKey) Coerce(v any) (any, error) {
	return coerce(v, k.Type, k.String())
}

// Coerce converts a decoded wire value to the method's declared return type.
// TypeChild returns are endpoint references, not wire values, and cannot be
// coerced here.
func (k MethodKey) Coerce(v any) (any, error) {
	if k.Type == TypeChild {
		return nil, fmt.Errorf("%w: method %s returns a child reference", ErrInvalidValue, k)
	}
	return coerce(v, k.Type, k.String())
}

// Inverse converts a typed value back to its wire representation.
// Coerce(Inverse(x)) round-trips for every value Inverse accepts.
func (k PropertyKey) Inverse(v any) any {
	switch k.Type {
	case TypeInt:
		// Ints travel as int64 regardless of the native width handed in.
		switch n := v.(type) {
		case int:
			return int64(n)
		case int64:
			return n
		case float64:
			// A fractional float is not a valid int; pass it through
			// unchanged so Coerce rejects it rather than truncating here.
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int64(n)
			}
		}
	case TypeFloat:
		switch n := v.(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return v
}

func coerce(v any, typ ValueType, key string) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: %s: nil", ErrInvalidValue, key)
	}

	switch typ {
	case TypeFloat:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case TypeInt:
		if n, ok := toInt(v); ok {
			return n, nil
		}
	case TypeBool:
		if b, ok := toBool(v); ok {
			return b, nil
		}
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeArray:
		if a, ok := v.([]any); ok {
			return a, nil
		}
	case TypeMap:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	default:
		return nil, fmt.Errorf("%w: %s: unknown declared type %q", ErrInvalidValue, key, typ)
	}

	return nil, fmt.Errorf("%w: %s: cannot coerce %T(%v) to %s", ErrInvalidValue, key, v, v, typ)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		// Reject fractional floats instead of truncating.
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt(float64(n))
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch n := v.(type) {
	case bool:
		return n, true
	case float64:
		if n == 0 || n == 1 {
			return n == 1, true
		}
	case int:
		if n == 0 || n == 1 {
			return n == 1, true
		}
	case int64:
		if n == 0 || n == 1 {
			return n == 1, true
		}
	}
	return false, false
}
