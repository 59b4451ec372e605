package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testTree struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Clauses []string `json:"clauses"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*ContractCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewWithClient(client, ttl)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestGetMissing(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	var target testTree
	err := cache.Get(context.Background(), "ctr_absent", &target)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	stored := testTree{ID: "ctr_1", Title: "Our Contract", Clauses: []string{"cls_1", "cls_2"}}
	if err := cache.Set(ctx, stored.ID, stored); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	var loaded testTree
	if err := cache.Get(ctx, stored.ID, &loaded); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.Title != stored.Title || len(loaded.Clauses) != 2 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestInvalidateDropsEntry(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, "ctr_1", testTree{ID: "ctr_1"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := cache.Invalidate(ctx, "ctr_1"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	var target testTree
	if err := cache.Get(ctx, "ctr_1", &target); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after invalidate, got %v", err)
	}
}

func TestEntryExpires(t *testing.T) {
	cache, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	if err := cache.Set(ctx, "ctr_1", testTree{ID: "ctr_1"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	mr.FastForward(2 * time.Second)

	var target testTree
	if err := cache.Get(ctx, "ctr_1", &target); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after TTL, got %v", err)
	}
}

func TestKeysAreScopedPerContract(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, "ctr_1", testTree{ID: "ctr_1", Title: "one"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := cache.Set(ctx, "ctr_2", testTree{ID: "ctr_2", Title: "two"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := cache.Invalidate(ctx, "ctr_1"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	var survivor testTree
	if err := cache.Get(ctx, "ctr_2", &survivor); err != nil {
		t.Fatalf("expected ctr_2 to survive, got %v", err)
	}
	if survivor.Title != "two" {
		t.Fatalf("wrong entry survived: %+v", survivor)
	}
}
