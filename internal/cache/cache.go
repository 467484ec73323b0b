// Package cache holds computed query results for a fixed time-to-live.
//
// Values are stored JSON-encoded so the same Cache can sit on an in-process map or a shared
// Redis. Concurrent misses for one key run the computation once. InvalidateAll bumps a
// generation counter: a computation started before the bump never stores its result, and
// callers arriving after it never join that computation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"thermo-cloud/internal/observability/metrics"
)

// DefaultTTL is used when no positive TTL is configured.
const DefaultTTL = 60 * time.Second

// Entry is a stored value and the time it was inserted.
type Entry struct {
	Value      []byte    `json:"value"`
	InsertedAt time.Time `json:"inserted_at"`
}

// Backend stores entries by key.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Purge(ctx context.Context) error
}

// Cache is a TTL cache with single-flight computation and invalidate-all.
type Cache struct {
	backend Backend
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger

	group singleflight.Group

	mu         sync.Mutex
	generation uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithBackend overrides the default in-memory backend.
func WithBackend(backend Backend) Option {
	return func(c *Cache) {
		if backend != nil {
			c.backend = backend
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger for backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a cache. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		backend: NewMemoryBackend(),
		ttl:     ttl,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetOrCompute returns the cached value for key, or runs compute and caches its result.
// Errors from compute are returned to every waiting caller and nothing is cached.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return zero, errors.New("cache: nil cache")
	}
	if compute == nil {
		return zero, errors.New("cache: nil compute")
	}

	if data, ok := c.lookup(ctx, key); ok {
		var value T
		if err := json.Unmarshal(data, &value); err == nil {
			metrics.IncCacheHit()
			return value, nil
		}
		c.logger.Warn("cache entry undecodable", "key", key)
	}
	metrics.IncCacheMiss()

	gen := c.currentGeneration()
	flightKey := fmt.Sprintf("%s#%d", key, gen)
	result, err, _ := c.group.Do(flightKey, func() (any, error) {
		// Joined callers share this computation; one caller leaving must not cancel it for the rest.
		value, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cache: encode %s: %w", key, err)
		}
		c.store(ctx, key, data, gen)
		return data, nil
	})
	if err != nil {
		return zero, err
	}

	var value T
	if err := json.Unmarshal(result.([]byte), &value); err != nil {
		return zero, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return value, nil
}

// InvalidateAll drops every entry and fences in-flight computations.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	metrics.IncCacheInvalidation()
	if err := c.backend.Purge(ctx); err != nil {
		return fmt.Errorf("cache: purge: %w", err)
	}
	return nil
}

func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	entry, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if c.clock.Since(entry.InsertedAt) >= c.ttl {
		return nil, false
	}
	return entry.Value, true
}

func (c *Cache) store(ctx context.Context, key string, data []byte, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	entry := Entry{Value: data, InsertedAt: c.clock.Now()}
	if err := c.backend.Set(ctx, key, entry, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
