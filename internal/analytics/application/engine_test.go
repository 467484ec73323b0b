package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"thermo-cloud/internal/analytics/domain/statistic"
	readings "thermo-cloud/internal/readings/domain"
	"thermo-cloud/internal/readings/infrastructure/memory"
)

func ptr(v float64) *float64 { return &v }

type failingSource struct{}

func (failingSource) QueryRange(context.Context, time.Time, int) ([]readings.Reading, error) {
	return nil, readings.StorageError("query", errors.New("disk gone"))
}

func TestEngine_ComputeOverWindow(t *testing.T) {
	repo := memory.NewReadingRepository()
	ctx := context.Background()
	now := time.Date(2025, time.September, 11, 18, 0, 0, 0, time.UTC)

	// Outside the window; must not affect min.
	_, _ = repo.Insert(ctx, readings.Reading{Timestamp: now.Add(-3 * time.Hour), T1: ptr(5)})
	_, _ = repo.Insert(ctx, readings.Reading{Timestamp: now.Add(-30 * time.Minute), T1: ptr(20)})
	_, _ = repo.Insert(ctx, readings.Reading{Timestamp: now.Add(-10 * time.Minute), T1: ptr(22)})

	engine, err := NewEngine(repo, time.UTC, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	snap, err := engine.Compute(ctx, now.Add(-time.Hour), false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	got := snap[readings.SensorT1]
	if got == nil || got.Min.Val != 20 || got.Max.Val != 22 || got.Avg != 21 || got.Current != 22 {
		t.Fatalf("unexpected statistic: %+v", got)
	}
	if snap[readings.SensorT2] != nil {
		t.Fatalf("expected nil t2")
	}
}

func TestEngine_StorageFailure(t *testing.T) {
	engine, err := NewEngine(failingSource{}, time.UTC, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = engine.Compute(context.Background(), time.Now(), false)
	if !errors.Is(err, readings.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

func TestEngine_RejectsZeroWindow(t *testing.T) {
	engine, _ := NewEngine(memory.NewReadingRepository(), nil, nil)
	if _, err := engine.Compute(context.Background(), time.Time{}, false); !errors.Is(err, statistic.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestNewEngine_NilSource(t *testing.T) {
	if _, err := NewEngine(nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil source")
	}
}
