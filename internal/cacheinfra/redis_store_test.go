package cacheinfra

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-entity/cache"
	"github.com/goliatone/go-entity/entity"
)

func newTestRedisStore(t *testing.T, mutate func(*RedisConfig)) (*RedisStore[entity.Fields], *miniredis.Miniredis, RedisConfig) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig()
	cfg.Addrs = []string{mr.Addr()}
	cfg.KeyPrefix = "test"
	if mutate != nil {
		mutate(&cfg)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore[entity.Fields](client, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	return store, mr, cfg
}

func TestRedisStore_GetManyHitMissNegative(t *testing.T) {
	ctx := context.Background()
	store, mr, cfg := newTestRedisStore(t, nil)

	err := store.SetMany(ctx, map[string]cache.Entry[entity.Fields]{
		"a": {Item: entity.Fields{"id": "a", "age": int64(3)}},
		"b": {Negative: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	// "c" was never written, so the pipelined GET for it returns redis.Nil.
	got, err := store.GetMany(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("missing keys must not fail the batch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %+v", got)
	}
	if got["a"].Negative || got["a"].Item["id"] != "a" || got["a"].Item["age"] != int64(3) {
		t.Errorf("unexpected hit entry %+v", got["a"])
	}
	if !got["b"].Negative {
		t.Errorf("expected negative entry, got %+v", got["b"])
	}
	if _, ok := got["c"]; ok {
		t.Error("missing key must be omitted")
	}

	if ttl := mr.TTL("test:a"); ttl != cfg.TTL {
		t.Errorf("expected row ttl %v, got %v", cfg.TTL, ttl)
	}
	if ttl := mr.TTL("test:b"); ttl != cfg.NegativeTTL {
		t.Errorf("expected negative ttl %v, got %v", cfg.NegativeTTL, ttl)
	}

	mr.FastForward(cfg.NegativeTTL + time.Second)
	got, err = store.GetMany(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["b"]; ok {
		t.Error("negative entry must expire after its negative ttl")
	}
	if got["a"].Item["id"] != "a" {
		t.Errorf("row entry must outlive the negative ttl, got %+v", got)
	}
}

func TestRedisStore_GetManyAllMissing(t *testing.T) {
	store, _, _ := newTestRedisStore(t, nil)

	got, err := store.GetMany(context.Background(), []string{"x", "y"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %+v", got)
	}
}

func TestRedisStore_ZeroNegativeTTLDeletesKey(t *testing.T) {
	ctx := context.Background()
	store, mr, _ := newTestRedisStore(t, func(c *RedisConfig) { c.NegativeTTL = 0 })

	if err := store.SetMany(ctx, map[string]cache.Entry[entity.Fields]{
		"k": {Item: entity.Fields{"id": "k"}},
	}); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("expected row to be stored")
	}

	if err := store.SetMany(ctx, map[string]cache.Entry[entity.Fields]{
		"k": {Negative: true},
	}); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("test:k") {
		t.Error("negative entry with zero ttl must remove the stale row")
	}

	got, err := store.GetMany(ctx, []string{"k"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["k"]; ok {
		t.Errorf("expected miss, got %+v", got)
	}
}

func TestRedisStore_DeleteMany(t *testing.T) {
	ctx := context.Background()
	store, mr, _ := newTestRedisStore(t, nil)

	_ = store.SetMany(ctx, map[string]cache.Entry[entity.Fields]{
		"a": {Item: entity.Fields{"id": "a"}},
		"b": {Negative: true},
		"c": {Item: entity.Fields{"id": "c"}},
	})

	if err := store.DeleteMany(ctx, []string{"a", "b", "never-written"}); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("test:a") || mr.Exists("test:b") {
		t.Error("expected deleted keys to be gone")
	}
	if !mr.Exists("test:c") {
		t.Error("expected untouched key to survive")
	}
}

func TestRedisStore_HashesLongKeys(t *testing.T) {
	ctx := context.Background()
	store, mr, cfg := newTestRedisStore(t, func(c *RedisConfig) { c.MaxKeyLength = 16 })

	long := "user::email::" + strings.Repeat("x", 40)
	if err := store.SetMany(ctx, map[string]cache.Entry[entity.Fields]{
		long: {Item: entity.Fields{"id": "u1"}},
	}); err != nil {
		t.Fatal(err)
	}

	if mr.Exists("test:" + long) {
		t.Error("long key must not be stored verbatim")
	}
	if !mr.Exists(RedisKey(cfg.KeyPrefix, cfg.MaxKeyLength, long)) {
		t.Errorf("expected hashed key, have %v", mr.Keys())
	}

	got, err := store.GetMany(ctx, []string{long})
	if err != nil {
		t.Fatal(err)
	}
	if got[long].Item["id"] != "u1" {
		t.Errorf("expected entry under the caller's key, got %+v", got)
	}
}

func TestRedisStore_AsStoreAdapter(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestRedisStore(t, nil)
	keyFn := func(key string, value string) string { return key + cache.KeySeparator + value }
	adapter := cache.NewStoreAdapter[string, string, entity.Fields](store, keyFn)

	if err := adapter.CacheMany(ctx, "user::id", map[string]entity.Fields{
		"u1": {"id": "u1"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := adapter.CacheMisses(ctx, "user::id", []string{"u2"}); err != nil {
		t.Fatal(err)
	}

	res, err := adapter.LoadMany(ctx, "user::id", []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatal(err)
	}
	if res["u1"].Status != cache.Hit || res["u1"].Item["id"] != "u1" {
		t.Errorf("expected hit for u1, got %+v", res["u1"])
	}
	if res["u2"].Status != cache.Negative {
		t.Errorf("expected negative for u2, got %v", res["u2"].Status)
	}
	if res["u3"].Status != cache.Miss {
		t.Errorf("expected miss for u3, got %v", res["u3"].Status)
	}

	if err := adapter.InvalidateMany(ctx, "user::id", []string{"u1", "u2"}); err != nil {
		t.Fatal(err)
	}
	res, err = adapter.LoadMany(ctx, "user::id", []string{"u1", "u2"})
	if err != nil {
		t.Fatal(err)
	}
	if res["u1"].Status != cache.Miss || res["u2"].Status != cache.Miss {
		t.Errorf("expected misses after invalidation, got %+v", res)
	}
}

func TestRedisStore_BackfillsLocalTier(t *testing.T) {
	ctx := context.Background()
	shared, _, _ := newTestRedisStore(t, nil)
	local, err := NewSturdycStore[entity.Fields](DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	keyFn := func(key string, value string) string { return key + cache.KeySeparator + value }

	composed := cache.NewComposed([]cache.Adapter[string, string, entity.Fields]{
		cache.NewStoreAdapter[string, string, entity.Fields](local, keyFn),
		cache.NewStoreAdapter[string, string, entity.Fields](shared, keyFn),
	})

	_ = shared.SetMany(ctx, map[string]cache.Entry[entity.Fields]{
		"user::id::u1": {Item: entity.Fields{"id": "u1"}},
		"user::id::u2": {Negative: true},
	})

	res, err := composed.LoadMany(ctx, "user::id", []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatal(err)
	}
	if res["u1"].Status != cache.Hit || res["u2"].Status != cache.Negative || res["u3"].Status != cache.Miss {
		t.Errorf("unexpected composed results %+v", res)
	}
	if got, _ := local.GetMany(ctx, []string{"user::id::u1"}); got["user::id::u1"].Item["id"] != "u1" {
		t.Errorf("expected local tier to be back-filled from redis, got %+v", got)
	}
}
