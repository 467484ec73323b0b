package metrics

import (
	"context"
	"errors"
	"testing"
)

type stubCounter struct {
	count int64
	err   error
}

func (s stubCounter) Count(context.Context) (int64, error) {
	return s.count, s.err
}

func TestQueryCount(t *testing.T) {
	cases := []struct {
		name    string
		counter RowCounter
		want    float64
	}{
		{name: "nil", counter: nil, want: 0},
		{name: "ok", counter: stubCounter{count: 42}, want: 42},
		{name: "error", counter: stubCounter{err: errors.New("down")}, want: 0},
		{name: "negative", counter: stubCounter{count: -1}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := queryCount(tc.counter); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestHelpersBeforeInitAreNoops(t *testing.T) {
	IncCacheHit()
	IncCacheMiss()
	IncCacheInvalidation()
	IncIngestError("")
	IncAlertEvent("", "")
	AddStreamClients(1)
}
