package clinical

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Compare evaluates "actual op threshold". Ordered operators compare
// numerically; == and != compare numerically when both sides are numbers
// and case-insensitively as strings otherwise; "in" tests membership in a
// threshold list.
func Compare(op string, actual, threshold any) (bool, error) {
	switch op {
	case "==":
		return equal(actual, threshold), nil
	case "!=":
		return !equal(actual, threshold), nil
	case ">", "<", ">=", "<=":
		a, t, err := toNumeric(actual, threshold)
		if err != nil {
			return false, err
		}
		switch op {
		case ">":
			return a > t, nil
		case "<":
			return a < t, nil
		case ">=":
			return a >= t, nil
		default:
			return a <= t, nil
		}
	case "in":
		return in(actual, threshold)
	default:
		return false, fmt.Errorf("unknown operator: %q", op)
	}
}

func equal(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	a, aErr := ToFloat(actual)
	e, eErr := ToFloat(expected)
	if aErr == nil && eErr == nil {
		return a == e
	}

	return strings.EqualFold(toString(actual), toString(expected))
}

func in(actual, expected any) (bool, error) {
	list := reflect.ValueOf(expected)
	if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
		return false, fmt.Errorf("in operator requires a list threshold, got %T", expected)
	}
	for i := 0; i < list.Len(); i++ {
		if equal(actual, list.Index(i).Interface()) {
			return true, nil
		}
	}
	return false, nil
}

func toNumeric(actual, expected any) (float64, float64, error) {
	a, err := ToFloat(actual)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot convert actual value to number: %w", err)
	}
	e, err := ToFloat(expected)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot convert threshold to number: %w", err)
	}
	return a, e, nil
}

// ToFloat converts numbers and numeric strings to float64.
func ToFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case *float64:
		if val == nil {
			return 0, fmt.Errorf("nil value")
		}
		return *val, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float64", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// ToBool interprets common encodings of a yes/no field: booleans, 0/1,
// and the strings yes/no, true/false, positive/negative, y/n.
func ToBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "yes", "y", "true", "positive", "1":
			return true, nil
		case "no", "n", "false", "negative", "0":
			return false, nil
		}
		return false, fmt.Errorf("cannot interpret %q as boolean", val)
	}
	if f, err := ToFloat(v); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("cannot interpret %T as boolean", v)
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}
