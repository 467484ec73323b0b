package statistic

import "errors"

var (
	// ErrUnorderedReadings is returned when readings are not newest-first.
	ErrUnorderedReadings = errors.New("statistic: readings not in descending timestamp order")
	// ErrInvalidWindow is returned when the window start is zero.
	ErrInvalidWindow = errors.New("statistic: invalid window start")
)
