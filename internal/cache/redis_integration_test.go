package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisBackend_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	prefix := fmt.Sprintf("thermo:test:%d:", time.Now().UnixNano())
	backend, err := NewRedisBackend(client, prefix)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	defer backend.Close()

	c := New(time.Minute, WithBackend(backend))
	var calls int32
	if _, err := GetOrCompute(ctx, c, "k", counting(&calls, payload{N: 1})); err != nil {
		t.Fatalf("prime: %v", err)
	}
	got, err := GetOrCompute(ctx, c, "k", counting(&calls, payload{N: 2}))
	if err != nil || got.N != 1 || calls != 1 {
		t.Fatalf("expected redis hit, err=%v calls=%d got=%+v", err, calls, got)
	}

	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, err := backend.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected purged key, ok=%v err=%v", ok, err)
	}
}
