package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	readings "thermo-cloud/internal/readings/domain"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory readings: closed")

// ReadingRepository is an in-memory repository for demo/testing.
type ReadingRepository struct {
	mu     sync.RWMutex
	rows   []readings.Reading
	nextID int64
	closed bool
}

// NewReadingRepository constructs a repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{nextID: 1}
}

// Insert appends the reading and assigns the next id.
func (r *ReadingRepository) Insert(ctx context.Context, reading readings.Reading) (int64, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, readings.StorageError("insert", ErrClosed)
	}

	stored := cloneReading(reading)
	stored.ID = r.nextID
	if stored.Status == "" {
		stored.Status = readings.StatusActive
	}
	r.nextID++
	r.rows = append(r.rows, stored)
	return stored.ID, nil
}

// QueryRange returns readings at or after since, newest first.
func (r *ReadingRepository) QueryRange(ctx context.Context, since time.Time, limit int) ([]readings.Reading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, readings.StorageError("query", ErrClosed)
	}

	result := make([]readings.Reading, 0)
	for _, row := range r.rows {
		if row.Timestamp.Before(since) {
			continue
		}
		result = append(result, cloneReading(row))
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID > result[j].ID
		}
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the number of stored readings.
func (r *ReadingRepository) Count(ctx context.Context) (int64, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, readings.StorageError("count", ErrClosed)
	}
	return int64(len(r.rows)), nil
}

// Close marks the repository unusable.
func (r *ReadingRepository) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func cloneReading(in readings.Reading) readings.Reading {
	out := in
	out.T1 = cloneValue(in.T1)
	out.T2 = cloneValue(in.T2)
	out.T3 = cloneValue(in.T3)
	return out
}

func cloneValue(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
