package readings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the canonical storage format.
const TimestampLayout = "2006-01-02 15:04:05"

// ShortTimeLayout is the display label used by the dashboard.
const ShortTimeLayout = "15:04"

// zonedLayouts carry an explicit offset; the parsed instant is converted to the storage location.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

// naiveLayouts are read as wall-clock time in the storage location.
// Fractional seconds are accepted after the seconds field without being spelled out.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseSensorValue converts a raw submitted field into a stored value.
// Anything that is not a finite number inside the valid range yields nil.
func ParseSensorValue(raw any) *float64 {
	var (
		v   float64
		err error
	)
	switch value := raw.(type) {
	case nil:
		return nil
	case float64:
		v = value
	case float32:
		v = float64(value)
	case int:
		v = float64(value)
	case int64:
		v = float64(value)
	case json.Number:
		v, err = value.Float64()
	case string:
		v, err = strconv.ParseFloat(strings.TrimSpace(value), 64)
	default:
		return nil
	}
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || !InRange(v) {
		return nil
	}
	return &v
}

// ParseTimestamp parses an ISO-8601-like client timestamp into loc, truncated to seconds.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	value := strings.TrimSpace(raw)
	if value == "" || strings.EqualFold(value, "null") {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.In(loc).Truncate(time.Second), true
		}
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts.Truncate(time.Second), true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp resolves the submitted ts field. Absent, null, the literal
// string "null", non-string and unparsable values all fall back to now.
// The second return value reports whether the fallback was used.
func NormalizeTimestamp(raw any, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	if s, ok := raw.(string); ok {
		if ts, ok := ParseTimestamp(s, loc); ok {
			return ts, false
		}
	}
	return now.In(loc).Truncate(time.Second), true
}

// FormatTimestamp renders ts in the canonical storage format.
func FormatTimestamp(ts time.Time, loc *time.Location) string {
	if loc != nil {
		ts = ts.In(loc)
	}
	return ts.Format(TimestampLayout)
}
