package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thermo-cloud/internal/analytics/domain/statistic"
	"thermo-cloud/internal/observability/metrics"
	readings "thermo-cloud/internal/readings/domain"
)

// ReadingSource is the read side of the readings store the engine needs.
type ReadingSource interface {
	QueryRange(ctx context.Context, since time.Time, limit int) ([]readings.Reading, error)
}

// Engine computes statistics snapshots straight from storage.
type Engine struct {
	source ReadingSource
	loc    *time.Location
	logger *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(source ReadingSource, loc *time.Location, logger *slog.Logger) (*Engine, error) {
	if source == nil {
		return nil, errors.New("analytics: nil reading source")
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{source: source, loc: loc, logger: logger}, nil
}

// Compute aggregates every reading at or after windowStart.
func (e *Engine) Compute(ctx context.Context, windowStart time.Time, withQuantiles bool) (statistic.Snapshot, error) {
	if windowStart.IsZero() {
		return nil, statistic.ErrInvalidWindow
	}
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStatistics(result, time.Since(start))
	}()

	rows, err := e.source.QueryRange(ctx, windowStart, 0)
	if err != nil {
		result = metrics.ResultError
		return nil, fmt.Errorf("analytics: load window: %w", err)
	}
	snap, err := statistic.Calculate(rows, statistic.Options{Location: e.loc, Quantiles: withQuantiles})
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	e.logger.Debug("statistics computed", "window_start", windowStart, "rows", len(rows))
	return snap, nil
}
