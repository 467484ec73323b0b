package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"thermo-cloud/internal/eventbus"
	"thermo-cloud/internal/observability/metrics"
	"thermo-cloud/internal/readings/application/events"
	readings "thermo-cloud/internal/readings/domain"
)

// Submission is one raw device payload. Fields hold decoded JSON values as-is.
type Submission struct {
	T1 any `json:"t1"`
	T2 any `json:"t2"`
	T3 any `json:"t3"`
	TS any `json:"ts"`
}

// Invalidator drops cached query results.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// IngestService validates submissions and records readings.
type IngestService struct {
	repo   readings.ReadingRepository
	cache  Invalidator
	bus    eventbus.EventBus
	clock  clockwork.Clock
	loc    *time.Location
	logger *slog.Logger
}

// ServiceOption configures application services.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock  clockwork.Clock
	loc    *time.Location
	logger *slog.Logger
}

// WithClock overrides the wall clock.
func WithClock(clock clockwork.Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation sets the storage time zone.
func WithLocation(loc *time.Location) ServiceOption {
	return func(o *serviceOptions) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []ServiceOption) serviceOptions {
	o := serviceOptions{
		clock:  clockwork.NewRealClock(),
		loc:    time.Local,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewIngestService constructs an IngestService. cache and bus are optional.
func NewIngestService(repo readings.ReadingRepository, cache Invalidator, bus eventbus.EventBus, opts ...ServiceOption) (*IngestService, error) {
	if repo == nil {
		return nil, errors.New("ingest: nil repository")
	}
	o := buildOptions(opts)
	return &IngestService{
		repo:   repo,
		cache:  cache,
		bus:    bus,
		clock:  o.clock,
		loc:    o.loc,
		logger: o.logger,
	}, nil
}

// Submit validates, normalizes and stores a submission received over transport.
func (s *IngestService) Submit(ctx context.Context, sub Submission, transport string) (readings.Reading, error) {
	start := s.clock.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIngest(transport, result, s.clock.Since(start))
	}()

	reading := readings.Reading{
		T1:     readings.ParseSensorValue(sub.T1),
		T2:     readings.ParseSensorValue(sub.T2),
		T3:     readings.ParseSensorValue(sub.T3),
		Status: readings.StatusActive,
	}
	if !reading.HasValue() {
		result = metrics.ResultError
		metrics.IncIngestError("no_valid_values")
		return readings.Reading{}, readings.NewValidationError("No valid temperature data")
	}

	ts, fallback := readings.NormalizeTimestamp(sub.TS, start, s.loc)
	if fallback && sub.TS != nil {
		s.logger.Debug("timestamp replaced with server time", "raw", sub.TS, "transport", transport)
	}
	reading.Timestamp = ts

	id, err := s.repo.Insert(ctx, reading)
	if err != nil {
		result = metrics.ResultError
		metrics.IncIngestError("insert_error")
		return readings.Reading{}, err
	}
	reading.ID = id

	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.logger.Warn("cache invalidation failed", "id", id, "error", err)
		}
	}

	if s.bus != nil {
		evt := events.ReadingRecorded{
			EventID:    uuid.NewString(),
			Reading:    reading,
			Source:     transport,
			OccurredAt: s.clock.Now().UTC(),
		}
		envCtx := eventbus.ContextWithEnvelope(ctx, eventbus.Envelope{
			EventID:    evt.EventID,
			EventType:  eventbus.EventTypeOf[events.ReadingRecorded](),
			OccurredAt: evt.OccurredAt,
		})
		if err := s.bus.Publish(envCtx, evt); err != nil {
			s.logger.Warn("publish reading recorded failed", "id", id, "error", err)
		}
	}
	return reading, nil
}
