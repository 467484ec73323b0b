package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"thermo-cloud/internal/analytics/domain/statistic"
	"thermo-cloud/internal/cache"
	readings "thermo-cloud/internal/readings/domain"
)

// Health states reported by Health.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	DatabaseConnected     = "connected"
)

// MaxWindowHours bounds the hours parameter of every window query (ten years).
const MaxWindowHours = 24 * 366 * 10

// DisplayRow is the lightweight shape served to the dashboard.
type DisplayRow struct {
	Time string   `json:"time"`
	TS   string   `json:"ts"`
	T1   *float64 `json:"t1"`
	T2   *float64 `json:"t2"`
	T3   *float64 `json:"t3"`
}

// HealthReport is the outcome of a storage liveness probe.
type HealthReport struct {
	Status        string `json:"status"`
	Database      string `json:"database,omitempty"`
	TotalReadings int64  `json:"total_readings"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// Healthy reports whether the probe succeeded.
func (h HealthReport) Healthy() bool {
	return h.Status == HealthStatusHealthy
}

// StatisticsEngine computes snapshots from storage.
type StatisticsEngine interface {
	Compute(ctx context.Context, windowStart time.Time, withQuantiles bool) (statistic.Snapshot, error)
}

// QueryService serves recent readings, statistics and health.
type QueryService struct {
	repo   readings.ReadingRepository
	cache  *cache.Cache
	engine StatisticsEngine
	clock  clockwork.Clock
	loc    *time.Location
	logger *slog.Logger
}

// NewQueryService constructs a QueryService.
func NewQueryService(repo readings.ReadingRepository, c *cache.Cache, engine StatisticsEngine, opts ...ServiceOption) (*QueryService, error) {
	if repo == nil {
		return nil, errors.New("query: nil repository")
	}
	if c == nil {
		return nil, errors.New("query: nil cache")
	}
	if engine == nil {
		return nil, errors.New("query: nil statistics engine")
	}
	o := buildOptions(opts)
	return &QueryService{
		repo:   repo,
		cache:  c,
		engine: engine,
		clock:  o.clock,
		loc:    o.loc,
		logger: o.logger,
	}, nil
}

// ListRecent returns up to limit readings from the last hours, newest first.
func (s *QueryService) ListRecent(ctx context.Context, hours, limit int) ([]DisplayRow, error) {
	if err := validateHours(hours); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, readings.NewValidationError("limit must be positive")
	}
	key := fmt.Sprintf("recent:%d:%d", hours, limit)
	return cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) ([]DisplayRow, error) {
		rows, err := s.repo.QueryRange(ctx, s.windowStart(hours), limit)
		if err != nil {
			return nil, err
		}
		out := make([]DisplayRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, s.display(row))
		}
		return out, nil
	})
}

// Window returns every reading from the last hours straight from storage, newest first.
func (s *QueryService) Window(ctx context.Context, hours int) ([]readings.Reading, error) {
	if err := validateHours(hours); err != nil {
		return nil, err
	}
	return s.repo.QueryRange(ctx, s.windowStart(hours), 0)
}

// Statistics computes a snapshot over the last hours. It never reads the cache.
func (s *QueryService) Statistics(ctx context.Context, hours int, withQuantiles bool) (statistic.Snapshot, error) {
	if err := validateHours(hours); err != nil {
		return nil, err
	}
	return s.engine.Compute(ctx, s.windowStart(hours), withQuantiles)
}

// Health probes storage. Failures are reported in the result, not returned.
func (s *QueryService) Health(ctx context.Context) HealthReport {
	now := s.clock.Now().In(s.loc).Format(time.RFC3339)
	count, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Error("health probe failed", "error", err)
		return HealthReport{Status: HealthStatusUnhealthy, Error: err.Error(), Timestamp: now}
	}
	return HealthReport{
		Status:        HealthStatusHealthy,
		Database:      DatabaseConnected,
		TotalReadings: count,
		Timestamp:     now,
	}
}

// Location returns the storage time zone.
func (s *QueryService) Location() *time.Location {
	return s.loc
}

func validateHours(hours int) error {
	if hours <= 0 {
		return readings.NewValidationError("hours must be positive")
	}
	if hours > MaxWindowHours {
		return readings.NewValidationError("hours must be at most %d", MaxWindowHours)
	}
	return nil
}

// windowStart expects hours already checked by validateHours, so the duration cannot overflow.
func (s *QueryService) windowStart(hours int) time.Time {
	return s.clock.Now().In(s.loc).Add(-time.Duration(hours) * time.Hour)
}

func (s *QueryService) display(row readings.Reading) DisplayRow {
	return DisplayRow{
		Time: row.Timestamp.In(s.loc).Format(readings.ShortTimeLayout),
		TS:   readings.FormatTimestamp(row.Timestamp, s.loc),
		T1:   row.T1,
		T2:   row.T2,
		T3:   row.T3,
	}
}
