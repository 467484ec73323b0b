package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"thermo-cloud/internal/eventbus"
	"thermo-cloud/internal/readings/application/events"
	readings "thermo-cloud/internal/readings/domain"
	"thermo-cloud/internal/readings/infrastructure/memory"
)

var (
	testLoc = time.FixedZone("IST", 3600)
	testNow = time.Date(2025, time.September, 11, 17, 0, 0, 0, time.UTC)
)

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) InvalidateAll(context.Context) error {
	c.calls++
	return c.err
}

type failingRepo struct {
	readings.ReadingRepository
}

func (failingRepo) Insert(context.Context, readings.Reading) (int64, error) {
	return 0, readings.StorageError("insert", errors.New("database is locked"))
}

func newIngest(t *testing.T, repo readings.ReadingRepository, inv Invalidator, bus eventbus.EventBus) *IngestService {
	t.Helper()
	svc, err := NewIngestService(repo, inv, bus,
		WithClock(clockwork.NewFakeClockAt(testNow)),
		WithLocation(testLoc),
	)
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	return svc
}

func TestSubmit_OutOfRangeValueStoredAsNull(t *testing.T) {
	repo := memory.NewReadingRepository()
	svc := newIngest(t, repo, nil, nil)

	got, err := svc.Submit(context.Background(), Submission{T1: 25.0, T2: 24.5, T3: -127.0}, "http")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.ID != 1 || got.T1 == nil || *got.T1 != 25 || got.T2 == nil || *got.T2 != 24.5 || got.T3 != nil {
		t.Fatalf("unexpected reading: %+v", got)
	}

	rows, err := repo.QueryRange(context.Background(), time.Time{}, 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 stored row, got %d (%v)", len(rows), err)
	}
	if rows[0].T3 != nil {
		t.Fatalf("expected t3 stored as null, got %v", *rows[0].T3)
	}
}

func TestSubmit_AllInvalidIsRejected(t *testing.T) {
	repo := memory.NewReadingRepository()
	inv := &countingInvalidator{}
	svc := newIngest(t, repo, inv, nil)

	cases := []Submission{
		{},
		{T1: nil, T2: nil, T3: nil, TS: "2025-09-11 12:00:00"},
		{T1: "abc", T2: 95.0, T3: true},
	}
	for _, sub := range cases {
		_, err := svc.Submit(context.Background(), sub, "http")
		if !errors.Is(err, readings.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", sub, err)
		}
		var vErr *readings.ValidationError
		if !errors.As(err, &vErr) || vErr.Message != "No valid temperature data" {
			t.Fatalf("unexpected validation error: %v", err)
		}
	}
	if count, _ := repo.Count(context.Background()); count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
	if inv.calls != 0 {
		t.Fatalf("expected no invalidation, got %d", inv.calls)
	}
}

func TestSubmit_TimestampHandling(t *testing.T) {
	cases := []struct {
		name string
		ts   any
		want string
	}{
		{name: "absent", ts: nil, want: "2025-09-11 18:00:00"},
		{name: "null literal", ts: "null", want: "2025-09-11 18:00:00"},
		{name: "garbage", ts: "yesterday-ish", want: "2025-09-11 18:00:00"},
		{name: "wrong type", ts: json.Number("12345"), want: "2025-09-11 18:00:00"},
		{name: "naive wall clock", ts: "2025-09-11T17:25:05", want: "2025-09-11 17:25:05"},
		{name: "utc converted", ts: "2025-09-11T17:25:05Z", want: "2025-09-11 18:25:05"},
		{name: "fraction truncated", ts: "2025-09-11 17:25:05.987", want: "2025-09-11 17:25:05"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := memory.NewReadingRepository()
			svc := newIngest(t, repo, nil, nil)
			got, err := svc.Submit(context.Background(), Submission{T1: 20.0, TS: tc.ts}, "http")
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if ts := readings.FormatTimestamp(got.Timestamp, testLoc); ts != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, ts)
			}
		})
	}
}

func TestSubmit_InvalidatesCacheAndPublishes(t *testing.T) {
	repo := memory.NewReadingRepository()
	inv := &countingInvalidator{}
	bus := eventbus.NewInMemoryBus()
	var recorded []events.ReadingRecorded
	eventbus.SubscribeTyped(bus, func(_ context.Context, evt events.ReadingRecorded) error {
		recorded = append(recorded, evt)
		return nil
	})
	svc := newIngest(t, repo, inv, bus)

	got, err := svc.Submit(context.Background(), Submission{T2: "21.5"}, "mqtt")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if inv.calls != 1 {
		t.Fatalf("expected 1 invalidation, got %d", inv.calls)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected 1 event, got %d", len(recorded))
	}
	evt := recorded[0]
	if evt.EventID == "" || evt.Source != "mqtt" || evt.Reading.ID != got.ID || *evt.Reading.T2 != 21.5 {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestSubmit_InvalidationFailureDoesNotFailSubmit(t *testing.T) {
	repo := memory.NewReadingRepository()
	svc := newIngest(t, repo, &countingInvalidator{err: errors.New("redis down")}, nil)
	if _, err := svc.Submit(context.Background(), Submission{T1: 20.0}, "http"); err != nil {
		t.Fatalf("expected submit to succeed, got %v", err)
	}
}

func TestSubmit_StorageFailure(t *testing.T) {
	inv := &countingInvalidator{}
	svc := newIngest(t, failingRepo{}, inv, nil)
	_, err := svc.Submit(context.Background(), Submission{T1: 20.0}, "http")
	if !errors.Is(err, readings.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if inv.calls != 0 {
		t.Fatalf("expected no invalidation on failed insert")
	}
}

func TestNewIngestService_NilRepo(t *testing.T) {
	if _, err := NewIngestService(nil, nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}
