package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

// store performs the read-then-write cycle the resolver does: Get for the
// handle, Set under it.
func store(t *testing.T, cache *VerdictCache, userID int64, capability string, contextID int64, verdict bool) {
	t.Helper()

	ctx := context.Background()
	_, _, handle, err := cache.Get(ctx, userID, capability, contextID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if err := cache.Set(ctx, handle, verdict); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
}

func TestVerdictCache_SetAndGet(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewVerdictCache(client, "rbac:acl", time.Minute)

	ctx := context.Background()

	_, ok, handle, err := cache.Get(ctx, 100, "core/ticket:view", 5)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty cache")
	}
	if handle == "" {
		t.Fatal("expected a handle even on miss")
	}

	if err := cache.Set(ctx, handle, true); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	verdict, ok, _, err := cache.Get(ctx, 100, "core/ticket:view", 5)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !ok || !verdict {
		t.Fatalf("expected cached allow, got ok=%v verdict=%v", ok, verdict)
	}

	store(t, cache, 100, "core/ticket:delete", 5, false)
	verdict, ok, _, err = cache.Get(ctx, 100, "core/ticket:delete", 5)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !ok || verdict {
		t.Fatalf("expected cached deny, got ok=%v verdict=%v", ok, verdict)
	}
}

func TestVerdictCache_KeysAreScoped(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewVerdictCache(client, "rbac:acl", time.Minute)

	ctx := context.Background()
	store(t, cache, 100, "core/ticket:view", 5, true)

	// Different user, context or capability must each miss.
	if _, ok, _, _ := cache.Get(ctx, 101, "core/ticket:view", 5); ok {
		t.Fatal("expected miss for different user")
	}
	if _, ok, _, _ := cache.Get(ctx, 100, "core/ticket:view", 6); ok {
		t.Fatal("expected miss for different context")
	}
	if _, ok, _, _ := cache.Get(ctx, 100, "core/ticket:edit", 5); ok {
		t.Fatal("expected miss for different capability")
	}
}

func TestVerdictCache_InvalidateUser(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewVerdictCache(client, "rbac:acl", time.Minute)

	ctx := context.Background()
	store(t, cache, 100, "core/ticket:view", 5, true)
	store(t, cache, 200, "core/ticket:view", 5, true)

	if err := cache.InvalidateUser(ctx, 100); err != nil {
		t.Fatalf("InvalidateUser returned error: %v", err)
	}

	if _, ok, _, _ := cache.Get(ctx, 100, "core/ticket:view", 5); ok {
		t.Fatal("expected user 100 verdicts invalidated")
	}
	verdict, ok, _, err := cache.Get(ctx, 200, "core/ticket:view", 5)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !ok || !verdict {
		t.Fatal("expected user 200 verdicts untouched")
	}
}

func TestVerdictCache_InvalidateAll(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewVerdictCache(client, "rbac:acl", time.Minute)

	ctx := context.Background()
	store(t, cache, 100, "core/ticket:view", 5, true)
	store(t, cache, 200, "core/ticket:view", 5, true)

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll returned error: %v", err)
	}

	if _, ok, _, _ := cache.Get(ctx, 100, "core/ticket:view", 5); ok {
		t.Fatal("expected all verdicts invalidated")
	}
	if _, ok, _, _ := cache.Get(ctx, 200, "core/ticket:view", 5); ok {
		t.Fatal("expected all verdicts invalidated")
	}

	// The cache stays writable under the new generation.
	store(t, cache, 100, "core/ticket:view", 5, false)
	verdict, ok, _, err := cache.Get(ctx, 100, "core/ticket:view", 5)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !ok || verdict {
		t.Fatalf("expected fresh deny cached, got ok=%v verdict=%v", ok, verdict)
	}
}

func TestVerdictCache_InvalidationOrphansInFlightWrite(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewVerdictCache(client, "rbac:acl", time.Minute)

	ctx := context.Background()

	// A resolver obtained its handle, then an invalidation landed before
	// it wrote. The write must end up under the old generation, invisible
	// to subsequent reads.
	_, ok, handle, err := cache.Get(ctx, 100, "core/ticket:view", 5)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll returned error: %v", err)
	}

	if err := cache.Set(ctx, handle, true); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if _, ok, _, _ := cache.Get(ctx, 100, "core/ticket:view", 5); ok {
		t.Fatal("expected write under pre-invalidation handle to be unreachable")
	}
}

func TestVerdictCache_UserInvalidationOrphansInFlightWrite(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewVerdictCache(client, "rbac:acl", time.Minute)

	ctx := context.Background()

	_, _, handle, err := cache.Get(ctx, 100, "core/ticket:view", 5)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	if err := cache.InvalidateUser(ctx, 100); err != nil {
		t.Fatalf("InvalidateUser returned error: %v", err)
	}

	if err := cache.Set(ctx, handle, true); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if _, ok, _, _ := cache.Get(ctx, 100, "core/ticket:view", 5); ok {
		t.Fatal("expected write under pre-bump user generation to be unreachable")
	}
}

func TestVerdictCache_EntriesExpire(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewVerdictCache(client, "rbac:acl", time.Minute)

	ctx := context.Background()
	store(t, cache, 100, "core/ticket:view", 5, true)

	server.FastForward(2 * time.Minute)

	if _, ok, _, _ := cache.Get(ctx, 100, "core/ticket:view", 5); ok {
		t.Fatal("expected verdict expired after ttl")
	}
}

func TestVerdictCache_Defaults(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewVerdictCache(client, "  ", 0)

	if cache.prefix != defaultVerdictPrefix {
		t.Errorf("expected default prefix, got %s", cache.prefix)
	}
	if cache.ttl != defaultVerdictTTL {
		t.Errorf("expected default ttl, got %v", cache.ttl)
	}
}
