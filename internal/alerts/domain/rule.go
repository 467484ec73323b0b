package alerts

import (
	"errors"
	"fmt"
	"math"
	"time"

	readings "thermo-cloud/internal/readings/domain"
)

// Condition is the direction a threshold is crossed in.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// ErrInvalidRule is returned by Validate for malformed rules.
var ErrInvalidRule = errors.New("alert rule: invalid")

// Rule defines a per-sensor threshold alert.
type Rule struct {
	Sensor    readings.Sensor `json:"sensor" yaml:"sensor"`
	Condition Condition       `json:"condition" yaml:"condition"`
	Threshold float64         `json:"threshold" yaml:"threshold"`
}

// Validate checks rule invariants.
func (r Rule) Validate() error {
	switch r.Sensor {
	case readings.SensorT1, readings.SensorT2, readings.SensorT3:
	default:
		return fmt.Errorf("%w: unknown sensor %q", ErrInvalidRule, r.Sensor)
	}
	if !r.Condition.Valid() {
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidRule, r.Condition)
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidRule)
	}
	return nil
}

// Valid returns true when the condition is supported.
func (c Condition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// Key identifies the rule for cooldown bookkeeping.
func (r Rule) Key() string {
	return fmt.Sprintf("%s:%s:%g", r.Sensor, r.Condition, r.Threshold)
}

// Breached reports whether v strictly crosses the threshold.
func (r Rule) Breached(v float64) bool {
	switch r.Condition {
	case ConditionAbove:
		return v > r.Threshold
	case ConditionBelow:
		return v < r.Threshold
	default:
		return false
	}
}

// DefaultRules alert above 30 and below 15 degrees on every sensor.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, 2*len(readings.Sensors))
	for _, cond := range []Condition{ConditionAbove, ConditionBelow} {
		threshold := 30.0
		if cond == ConditionBelow {
			threshold = 15.0
		}
		for _, sensor := range readings.Sensors {
			rules = append(rules, Rule{Sensor: sensor, Condition: cond, Threshold: threshold})
		}
	}
	return rules
}

// Event is a fired alert.
type Event struct {
	ID        string    `json:"id"`
	Rule      Rule      `json:"rule"`
	Value     float64   `json:"value"`
	ReadingID int64     `json:"reading_id"`
	ReadingTS string    `json:"reading_ts"`
	RaisedAt  time.Time `json:"raised_at"`
}
