package events

import (
	"time"

	readings "thermo-cloud/internal/readings/domain"
)

// ReadingRecorded is raised after a reading has been durably stored.
type ReadingRecorded struct {
	EventID    string           `json:"event_id"`
	Reading    readings.Reading `json:"reading"`
	Source     string           `json:"source"`
	OccurredAt time.Time        `json:"occurred_at"`
}
