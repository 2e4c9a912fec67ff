package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/wispberry-tech/wispy-guard/core"
)

func newTestRedisCache(t *testing.T) (*RedisBlacklistCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return NewRedisBlacklistCache(rdb, ""), mr
}

func TestRedisBlacklistCache_AddContains(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	hit, err := cache.Contains(ctx, "203.0.113.9")
	if err != nil || hit {
		t.Fatalf("Contains() on empty cache = %v, %v", hit, err)
	}

	if err := cache.Add(ctx, "203.0.113.9"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	hit, err = cache.Contains(ctx, "203.0.113.9")
	if err != nil || !hit {
		t.Errorf("Contains() after Add = %v, %v", hit, err)
	}

	members, err := mr.SMembers(defaultBlacklistKey)
	if err != nil || len(members) != 1 {
		t.Errorf("set members = %v, %v", members, err)
	}
}

func TestRedisBlacklistCache_Unavailable(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	mr.Close()

	if _, err := cache.Contains(context.Background(), "203.0.113.9"); err == nil {
		t.Error("Contains() with redis down expected error")
	}
}

// The gate falls back to storage when the cache fails and warms the cache on a storage hit.
func TestBlacklistGate_WithRedisCache(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	s := mustCreateTestSQLite(t)
	ctx := context.Background()
	gate := core.NewBlacklistGate(s, cache)

	created, err := gate.Block(ctx, "198.51.100.4", "manual test")
	if err != nil || !created {
		t.Fatalf("Block() = %v, %v", created, err)
	}
	if ok, _ := mr.SIsMember(defaultBlacklistKey, "198.51.100.4"); !ok {
		t.Error("Block() did not populate the cache")
	}

	mr.Del(defaultBlacklistKey)
	blocked, err := gate.IsBlocked(ctx, "198.51.100.4")
	if err != nil || !blocked {
		t.Fatalf("IsBlocked() after cache flush = %v, %v", blocked, err)
	}
	if ok, _ := mr.SIsMember(defaultBlacklistKey, "198.51.100.4"); !ok {
		t.Error("IsBlocked() did not warm the cache")
	}

	blocked, err = gate.IsBlocked(ctx, "198.51.100.5")
	if err != nil || blocked {
		t.Errorf("IsBlocked(unknown) = %v, %v", blocked, err)
	}
}
