package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	analytics "thermo-cloud/internal/analytics/application"
	"thermo-cloud/internal/cache"
	readings "thermo-cloud/internal/readings/domain"
	"thermo-cloud/internal/readings/infrastructure/memory"
)

type queryFixture struct {
	repo   *memory.ReadingRepository
	cache  *cache.Cache
	clock  *clockwork.FakeClock
	ingest *IngestService
	query  *QueryService
}

func newQueryFixture(t *testing.T) queryFixture {
	t.Helper()
	repo := memory.NewReadingRepository()
	clock := clockwork.NewFakeClockAt(testNow)
	c := cache.New(time.Minute, cache.WithClock(clock))
	engine, err := analytics.NewEngine(repo, testLoc, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	opts := []ServiceOption{WithClock(clock), WithLocation(testLoc)}
	ingest, err := NewIngestService(repo, c, nil, opts...)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	query, err := NewQueryService(repo, c, engine, opts...)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return queryFixture{repo: repo, cache: c, clock: clock, ingest: ingest, query: query}
}

func (f queryFixture) insertAt(t *testing.T, ago time.Duration, t1 float64) {
	t.Helper()
	v := t1
	if _, err := f.repo.Insert(context.Background(), readings.Reading{Timestamp: testNow.Add(-ago).In(testLoc), T1: &v}); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestListRecent_ShapesNewestFirst(t *testing.T) {
	f := newQueryFixture(t)
	f.insertAt(t, 30*time.Minute, 20)
	f.insertAt(t, 10*time.Minute, 22)
	f.insertAt(t, 3*time.Hour, 19)

	rows, err := f.query.ListRecent(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Time != "17:50" || rows[0].TS != "2025-09-11 17:50:00" || *rows[0].T1 != 22 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Time != "17:30" || rows[0].T2 != nil {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestListRecent_ServesCacheUntilInvalidated(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()
	f.insertAt(t, 10*time.Minute, 20)

	first, err := f.query.ListRecent(ctx, 24, 1000)
	if err != nil || len(first) != 1 {
		t.Fatalf("first list: %v (%d rows)", err, len(first))
	}

	// A write that bypasses the ingest service is invisible until the entry expires.
	f.insertAt(t, 5*time.Minute, 21)
	cached, _ := f.query.ListRecent(ctx, 24, 1000)
	if len(cached) != 1 {
		t.Fatalf("expected cached result, got %d rows", len(cached))
	}

	f.clock.Advance(time.Minute)
	expired, _ := f.query.ListRecent(ctx, 24, 1000)
	if len(expired) != 2 {
		t.Fatalf("expected recompute after ttl, got %d rows", len(expired))
	}

	if _, err := f.ingest.Submit(ctx, Submission{T1: 23.0}, "http"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	fresh, _ := f.query.ListRecent(ctx, 24, 1000)
	if len(fresh) != 3 || *fresh[0].T1 != 23 {
		t.Fatalf("expected submitted reading after invalidation, got %+v", fresh)
	}
}

func TestListRecent_LimitAndValidation(t *testing.T) {
	f := newQueryFixture(t)
	for i := 1; i <= 5; i++ {
		f.insertAt(t, time.Duration(i)*time.Minute, float64(20+i))
	}
	rows, err := f.query.ListRecent(context.Background(), 24, 2)
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d (%v)", len(rows), err)
	}

	if _, err := f.query.ListRecent(context.Background(), 0, 10); !errors.Is(err, readings.ErrValidation) {
		t.Fatalf("expected validation error for hours=0, got %v", err)
	}
	if _, err := f.query.ListRecent(context.Background(), 1, -1); !errors.Is(err, readings.ErrValidation) {
		t.Fatalf("expected validation error for limit=-1, got %v", err)
	}
}

func TestStatistics_BypassesCache(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()
	f.insertAt(t, 20*time.Minute, 20)

	if _, err := f.query.ListRecent(ctx, 24, 1000); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	f.insertAt(t, 10*time.Minute, 22)

	snap, err := f.query.Statistics(ctx, 24, false)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	got := snap[readings.SensorT1]
	if got == nil || got.Min.Val != 20 || got.Max.Val != 22 || got.Avg != 21 || got.Current != 22 {
		t.Fatalf("unexpected statistic: %+v", got)
	}
}

func TestStatistics_EmptyWindow(t *testing.T) {
	f := newQueryFixture(t)
	snap, err := f.query.Statistics(context.Background(), 24, false)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	for _, sensor := range readings.Sensors {
		if stat, ok := snap[sensor]; !ok || stat != nil {
			t.Fatalf("expected explicit nil for %s", sensor)
		}
	}
}

func TestHealth(t *testing.T) {
	f := newQueryFixture(t)
	f.insertAt(t, time.Minute, 20)

	report := f.query.Health(context.Background())
	if !report.Healthy() || report.Database != DatabaseConnected || report.TotalReadings != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Timestamp != "2025-09-11T18:00:00+01:00" {
		t.Fatalf("unexpected timestamp: %s", report.Timestamp)
	}

	_ = f.repo.Close()
	report = f.query.Health(context.Background())
	if report.Healthy() || report.Status != HealthStatusUnhealthy || report.Error == "" {
		t.Fatalf("expected unhealthy report, got %+v", report)
	}
}

func TestWindowQueries_RejectHoursBeyondMax(t *testing.T) {
	f := newQueryFixture(t)
	f.insertAt(t, 30*time.Minute, 20)
	ctx := context.Background()

	rows, err := f.query.ListRecent(ctx, MaxWindowHours, 100)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 row at the maximum window, got %d (%v)", len(rows), err)
	}
	snap, err := f.query.Statistics(ctx, MaxWindowHours, false)
	if err != nil || snap[readings.SensorT1] == nil {
		t.Fatalf("expected t1 statistics at the maximum window, got %+v (%v)", snap, err)
	}

	for _, hours := range []int{MaxWindowHours + 1, 3_000_000} {
		if _, err := f.query.ListRecent(ctx, hours, 100); !errors.Is(err, readings.ErrValidation) {
			t.Fatalf("ListRecent(%d): expected validation error, got %v", hours, err)
		}
		if _, err := f.query.Statistics(ctx, hours, false); !errors.Is(err, readings.ErrValidation) {
			t.Fatalf("Statistics(%d): expected validation error, got %v", hours, err)
		}
		if _, err := f.query.Window(ctx, hours); !errors.Is(err, readings.ErrValidation) {
			t.Fatalf("Window(%d): expected validation error, got %v", hours, err)
		}
	}
}
