package readings

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestParseSensorValue(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want *float64
	}{
		{name: "nil", raw: nil, want: nil},
		{name: "in range", raw: 25.0, want: ptr(25.0)},
		{name: "lower bound", raw: -10.0, want: ptr(-10.0)},
		{name: "upper bound", raw: 80.0, want: ptr(80.0)},
		{name: "below range", raw: -10.01, want: nil},
		{name: "above range", raw: 80.5, want: nil},
		{name: "disconnected sensor", raw: -127.0, want: nil},
		{name: "numeric string", raw: " 24.5 ", want: ptr(24.5)},
		{name: "json number", raw: json.Number("21.25"), want: ptr(21.25)},
		{name: "garbage string", raw: "warm", want: nil},
		{name: "nan string", raw: "NaN", want: nil},
		{name: "infinity", raw: math.Inf(1), want: nil},
		{name: "bool", raw: true, want: nil},
		{name: "object", raw: map[string]any{"v": 1}, want: nil},
		{name: "int", raw: 20, want: ptr(20.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSensorValue(tt.raw)
			switch {
			case tt.want == nil && got != nil:
				t.Fatalf("expected nil, got %v", *got)
			case tt.want != nil && got == nil:
				t.Fatalf("expected %v, got nil", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Fatalf("expected %v, got %v", *tt.want, *got)
			}
		})
	}
}

func TestParseSensorValue_RangeIsExact(t *testing.T) {
	for v := -10.0; v <= 80.0; v += 0.25 {
		got := ParseSensorValue(v)
		if got == nil || *got != v {
			t.Fatalf("value %v should be stored unchanged", v)
		}
	}
	for _, v := range []float64{-10.25, -50, 80.25, 200} {
		if got := ParseSensorValue(v); got != nil {
			t.Fatalf("value %v should be dropped, got %v", v, *got)
		}
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	dublin := time.FixedZone("IST", 3600)
	now := time.Date(2025, time.September, 11, 18, 0, 0, 500, time.UTC)

	tests := []struct {
		name         string
		raw          any
		want         string
		wantFallback bool
	}{
		{name: "absent", raw: nil, want: "2025-09-11 19:00:00", wantFallback: true},
		{name: "literal null", raw: "null", want: "2025-09-11 19:00:00", wantFallback: true},
		{name: "garbage", raw: "yesterday", want: "2025-09-11 19:00:00", wantFallback: true},
		{name: "number", raw: 1757610305.0, want: "2025-09-11 19:00:00", wantFallback: true},
		{name: "naive iso", raw: "2025-09-11T17:25:05", want: "2025-09-11 17:25:05"},
		{name: "naive space", raw: "2025-09-11 17:25:05", want: "2025-09-11 17:25:05"},
		{name: "fraction", raw: "2025-09-11T17:25:05.987", want: "2025-09-11 17:25:05"},
		{name: "minutes only", raw: "2025-09-11T17:25", want: "2025-09-11 17:25:00"},
		{name: "date only", raw: "2025-09-11", want: "2025-09-11 00:00:00"},
		{name: "utc zone converted", raw: "2025-09-11T17:25:05Z", want: "2025-09-11 18:25:05"},
		{name: "offset converted", raw: "2025-09-11T17:25:05+02:00", want: "2025-09-11 16:25:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback := NormalizeTimestamp(tt.raw, now, dublin)
			if fallback != tt.wantFallback {
				t.Fatalf("expected fallback=%v, got %v", tt.wantFallback, fallback)
			}
			if formatted := FormatTimestamp(got, dublin); formatted != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, formatted)
			}
			if got.Nanosecond() != 0 {
				t.Fatalf("expected second precision, got %d ns", got.Nanosecond())
			}
		})
	}
}

func TestReadingHasValue(t *testing.T) {
	if (Reading{}).HasValue() {
		t.Fatal("empty reading should have no value")
	}
	r := Reading{T3: ptr(1)}
	if !r.HasValue() {
		t.Fatal("expected value")
	}
	if r.Value(SensorT3) == nil || r.Value(SensorT1) != nil {
		t.Fatal("unexpected sensor mapping")
	}
}

func ptr(v float64) *float64 {
	return &v
}
