package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// providers disagree on how they hand back column values: sqlite returns
// int64 for booleans, mysql returns []byte for most types, and text time
// columns come back as strings. These helpers normalise them; the bool
// result is false for NULL.

func asInt64(raw interface{}) (int64, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case int64:
		return v, true, nil
	case int32:
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	case uint64:
		return int64(v), true, nil
	case float64:
		return int64(v), true, nil
	case bool:
		if v {
			return 1, true, nil
		}
		return 0, true, nil
	case []byte:
		i, err := strconv.ParseInt(string(v), 10, 64)
		return i, err == nil, err
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil, err
	}
	return 0, false, fmt.Errorf("cannot convert %T to int64", raw)
}

func asFloat64(raw interface{}) (float64, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil, err
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil, err
	}
	return 0, false, fmt.Errorf("cannot convert %T to float64", raw)
}

func asString(raw interface{}) (string, bool, error) {
	switch v := raw.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case []byte:
		return string(v), true, nil
	case int64, float64, bool:
		return fmt.Sprint(v), true, nil
	case time.Time:
		return v.Format(time.RFC3339Nano), true, nil
	}
	return "", false, fmt.Errorf("cannot convert %T to string", raw)
}

func asBool(raw interface{}) (bool, bool, error) {
	switch v := raw.(type) {
	case nil:
		return false, false, nil
	case bool:
		return v, true, nil
	case int64:
		return v != 0, true, nil
	case []byte:
		b, err := parseBool(string(v))
		return b, err == nil, err
	case string:
		b, err := parseBool(v)
		return b, err == nil, err
	}
	return false, false, fmt.Errorf("cannot convert %T to bool", raw)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// layouts produced by the supported drivers, tried before falling back to now.Parse
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func asTime(raw interface{}) (time.Time, bool, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v.UTC(), true, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return time.Time{}, false, fmt.Errorf("cannot convert %T to time", raw)
	}

	if s == "" {
		return time.Time{}, false, nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true, nil
		}
	}

	t, err := now.ParseInLocation(time.UTC, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}

func asBytes(raw interface{}) ([]byte, bool, error) {
	switch v := raw.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		// drivers may reuse the buffer after the next Scan
		return append([]byte(nil), v...), true, nil
	case string:
		return []byte(v), true, nil
	}
	return nil, false, fmt.Errorf("cannot convert %T to bytes", raw)
}
