package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps entries in a process-local map.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryBackend constructs an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

// Get returns the entry for key.
func (b *MemoryBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	_ = ctx
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[key]
	return entry, ok, nil
}

// Set stores entry. With a positive ttl it first drops entries that are at
// least ttl older than entry, so keys that are never read again do not pile up.
func (b *MemoryBackend) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	if ttl > 0 {
		for k, existing := range b.entries {
			if entry.InsertedAt.Sub(existing.InsertedAt) >= ttl {
				delete(b.entries, k)
			}
		}
	}
	b.entries[key] = entry
	return nil
}

// Purge removes every entry.
func (b *MemoryBackend) Purge(ctx context.Context) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]Entry)
	return nil
}

// Len reports the number of stored entries.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
