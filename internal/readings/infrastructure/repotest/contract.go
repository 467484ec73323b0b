// Package repotest holds behaviour checks shared by every ReadingRepository backend.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	readings "thermo-cloud/internal/readings/domain"
)

// Factory builds a fresh, empty repository for one subtest.
type Factory func(t *testing.T) readings.ReadingRepository

// Run exercises the repository contract against repositories built by newRepo.
func Run(t *testing.T, loc *time.Location, newRepo Factory) {
	t.Helper()
	if loc == nil {
		loc = time.UTC
	}

	t.Run("InsertAssignsIncreasingIDs", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Date(2025, time.September, 11, 12, 0, 0, 0, loc)

		var last int64
		for i := 0; i < 5; i++ {
			id, err := repo.Insert(ctx, readings.Reading{Timestamp: base.Add(time.Duration(i) * time.Minute), T1: Ptr(20)})
			if err != nil {
				t.Fatalf("insert: %v", err)
			}
			if id <= last {
				t.Fatalf("expected id > %d, got %d", last, id)
			}
			last = id
		}
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 5 {
			t.Fatalf("expected 5 rows, got %d", count)
		}
	})

	t.Run("QueryRangeNewestFirstWithLimit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Date(2025, time.September, 11, 12, 0, 0, 0, loc)

		// Out-of-order client timestamps: ordering must follow timestamp, not id.
		offsets := []int{10, 0, 30, 20, 40}
		for _, off := range offsets {
			if _, err := repo.Insert(ctx, readings.Reading{Timestamp: base.Add(time.Duration(off) * time.Minute), T1: Ptr(float64(off))}); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		got, err := repo.QueryRange(ctx, base.Add(10*time.Minute), 0)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		want := []float64{40, 30, 20, 10}
		if len(got) != len(want) {
			t.Fatalf("expected %d rows, got %d", len(want), len(got))
		}
		for i, row := range got {
			if row.T1 == nil || *row.T1 != want[i] {
				t.Fatalf("row %d: expected t1=%v, got %v", i, want[i], row.T1)
			}
			if row.Timestamp.Location().String() != loc.String() {
				t.Fatalf("row %d: expected location %s, got %s", i, loc, row.Timestamp.Location())
			}
		}

		limited, err := repo.QueryRange(ctx, base, 2)
		if err != nil {
			t.Fatalf("query limited: %v", err)
		}
		if len(limited) != 2 || *limited[0].T1 != 40 || *limited[1].T1 != 30 {
			t.Fatalf("unexpected limited result: %+v", limited)
		}
	})

	t.Run("NullValuesAndStatusRoundTrip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		ts := time.Date(2025, time.September, 11, 17, 25, 5, 0, loc)

		if _, err := repo.Insert(ctx, readings.Reading{Timestamp: ts, T1: Ptr(25), T2: Ptr(24.5)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, err := repo.QueryRange(ctx, ts, 10)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 row, got %d", len(got))
		}
		row := got[0]
		if row.T1 == nil || *row.T1 != 25 || row.T2 == nil || *row.T2 != 24.5 || row.T3 != nil {
			t.Fatalf("unexpected values: %+v", row)
		}
		if !row.Timestamp.Equal(ts) {
			t.Fatalf("expected %s, got %s", ts, row.Timestamp)
		}
		if row.Status != readings.StatusActive {
			t.Fatalf("expected status %q, got %q", readings.StatusActive, row.Status)
		}
	})

	t.Run("ConcurrentInsertsAreDistinct", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		const n = 32
		ts := time.Date(2025, time.September, 11, 12, 0, 0, 0, loc)

		ids := make(chan int64, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := repo.Insert(ctx, readings.Reading{Timestamp: ts, T2: Ptr(float64(i % 50))})
				if err != nil {
					t.Errorf("insert: %v", err)
					return
				}
				ids <- id
			}(i)
		}
		wg.Wait()
		close(ids)

		seen := make(map[int64]struct{}, n)
		for id := range ids {
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = struct{}{}
		}
		if len(seen) != n {
			t.Fatalf("expected %d ids, got %d", n, len(seen))
		}
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != n {
			t.Fatalf("expected %d rows, got %d", n, count)
		}
	})
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 {
	return &v
}
