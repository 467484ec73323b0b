package readings

import (
	"context"
	"time"
)

// Sensor value bounds in degrees Celsius. Values outside are treated as absent.
const (
	MinValidValue = -10.0
	MaxValidValue = 80.0
)

// StatusActive is the default status tag of a stored reading.
const StatusActive = "active"

// Sensor names a temperature channel.
type Sensor string

const (
	SensorT1 Sensor = "t1"
	SensorT2 Sensor = "t2"
	SensorT3 Sensor = "t3"
)

// Sensors lists the channels in their canonical order.
var Sensors = []Sensor{SensorT1, SensorT2, SensorT3}

// Reading is one ingested sample.
type Reading struct {
	ID        int64
	Timestamp time.Time
	T1        *float64
	T2        *float64
	T3        *float64
	Status    string
}

// Value returns the value recorded for sensor, or nil when absent.
func (r Reading) Value(sensor Sensor) *float64 {
	switch sensor {
	case SensorT1:
		return r.T1
	case SensorT2:
		return r.T2
	case SensorT3:
		return r.T3
	default:
		return nil
	}
}

// HasValue reports whether at least one sensor carries a value.
func (r Reading) HasValue() bool {
	return r.T1 != nil || r.T2 != nil || r.T3 != nil
}

// InRange reports whether v lies in the closed valid interval.
func InRange(v float64) bool {
	return v >= MinValidValue && v <= MaxValidValue
}

// ReadingRepository persists readings.
type ReadingRepository interface {
	// Insert stores the reading and returns its assigned id.
	Insert(ctx context.Context, reading Reading) (int64, error)
	// QueryRange returns readings with timestamp >= since, newest first.
	// A limit <= 0 returns every matching row.
	QueryRange(ctx context.Context, since time.Time, limit int) ([]Reading, error)
	// Count returns the total number of stored readings.
	Count(ctx context.Context) (int64, error)
	Close() error
}
