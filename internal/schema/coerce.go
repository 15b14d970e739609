package schema

import (
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// coerce converts v to the canonical Go type for k:
//
//	bool      -> bool
//	int64     -> int64
//	float64   -> float64
//	decimal   -> string (exact text)
//	string    -> string
//	bytes     -> []byte
//	date      -> time.Time (UTC midnight)
//	timestamp -> time.Time (UTC)
//
// nil is valid for every kind. Conversions only widen; nothing is parsed out
// of free text except decimal text from the driver.
func coerce(k Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}

	case KindInt64:
		return toInt64(v)

	case KindFloat64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		}
		if i, err := toInt64(v); err == nil {
			return float64(i.(int64)), nil
		}

	case KindDecimal:
		switch n := v.(type) {
		case string:
			return n, nil
		case []byte:
			return string(n), nil
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		case float32:
			return strconv.FormatFloat(float64(n), 'f', -1, 32), nil
		}
		if i, err := toInt64(v); err == nil {
			return strconv.FormatInt(i.(int64), 10), nil
		}

	case KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			if utf8.Valid(s) {
				return string(s), nil
			}
			return nil, fmt.Errorf("invalid UTF-8 in %d bytes", len(s))
		}

	case KindBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}

	case KindDate:
		if t, ok := v.(time.Time); ok {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}

	case KindTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("type mismatch")
}

func toInt64(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	}
	return nil, fmt.Errorf("type mismatch")
}
