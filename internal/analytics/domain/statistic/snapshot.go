package statistic

import (
	readings "thermo-cloud/internal/readings/domain"
)

// Extreme is a minimum or maximum value and when it was observed.
type Extreme struct {
	Val  float64 `json:"val"`
	Time string  `json:"time"`
	TS   string  `json:"ts"`
}

// SensorStatistic aggregates one sensor over a window.
type SensorStatistic struct {
	Min     Extreme  `json:"min"`
	Max     Extreme  `json:"max"`
	Avg     float64  `json:"avg"`
	Current float64  `json:"current"`
	Count   int      `json:"count"`
	P50     *float64 `json:"p50,omitempty"`
	P95     *float64 `json:"p95,omitempty"`
}

// Snapshot maps sensor name to its statistic. A sensor with no values maps to nil.
type Snapshot map[readings.Sensor]*SensorStatistic

// EmptySnapshot returns a snapshot with every sensor present and nil.
func EmptySnapshot() Snapshot {
	snap := make(Snapshot, len(readings.Sensors))
	for _, sensor := range readings.Sensors {
		snap[sensor] = nil
	}
	return snap
}
