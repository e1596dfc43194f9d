package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
)

// mapStore is an in-memory Store that counts calls.
type mapStore struct {
	mu      sync.Mutex
	entries map[string]Entry[string]

	getCalls    int
	setCalls    int
	deleteCalls int
	requested   []string
	getErr      error
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]Entry[string])}
}

func (s *mapStore) GetMany(_ context.Context, keys []string) (map[string]Entry[string], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	s.requested = append(s.requested, keys...)
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := make(map[string]Entry[string])
	for _, k := range keys {
		if e, ok := s.entries[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

func (s *mapStore) SetMany(_ context.Context, entries map[string]Entry[string]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	for k, e := range entries {
		s.entries[k] = e
	}
	return nil
}

func (s *mapStore) DeleteMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *mapStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func keyFn(key string, value string) string { return key + KeySeparator + value }

func newTier(store *mapStore) Adapter[string, string, string] {
	return NewStoreAdapter[string, string, string](store, keyFn)
}

// countingFetch records the values it was asked for.
type countingFetch struct {
	mu    sync.Mutex
	rows  map[string][]string
	calls map[string]int
	err   error
}

func newCountingFetch(rows map[string][]string) *countingFetch {
	return &countingFetch{rows: rows, calls: make(map[string]int)}
}

func (f *countingFetch) fetch(_ context.Context, _ string, values []string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]string)
	for _, v := range values {
		f.calls[v]++
		if rows, ok := f.rows[v]; ok {
			out[v] = rows
		}
	}
	return out, nil
}

func (f *countingFetch) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func TestStoreAdapter_InvalidateUncachedIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	tier := newTier(store)

	if err := tier.InvalidateMany(ctx, "k", []string{"missing"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.len() != 0 {
		t.Errorf("expected empty store, got %d entries", store.len())
	}

	res, err := tier.LoadMany(ctx, "k", []string{"missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res["missing"].Status != Miss {
		t.Errorf("expected miss, got %s", res["missing"].Status)
	}
}

func TestStoreAdapter_RecacheOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	tier := newTier(store)

	if err := tier.CacheMany(ctx, "k", map[string]string{"a": "v1"}); err != nil {
		t.Fatal(err)
	}
	if err := tier.CacheMany(ctx, "k", map[string]string{"a": "v2"}); err != nil {
		t.Fatal(err)
	}
	if store.len() != 1 {
		t.Fatalf("expected a single entry, got %d", store.len())
	}

	res, _ := tier.LoadMany(ctx, "k", []string{"a"})
	if res["a"].Status != Hit || res["a"].Item != "v2" {
		t.Errorf("expected hit v2, got %+v", res["a"])
	}

	if err := tier.CacheMisses(ctx, "k", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	res, _ = tier.LoadMany(ctx, "k", []string{"a"})
	if res["a"].Status != Negative {
		t.Errorf("expected negative after caching miss, got %s", res["a"].Status)
	}
}

func TestComposed_ZeroTiersAlwaysMiss(t *testing.T) {
	ctx := context.Background()
	c := NewComposed[string, string, string](nil)

	if err := c.CacheMany(ctx, "k", map[string]string{"a": "v"}); err != nil {
		t.Fatal(err)
	}
	res, err := c.LoadMany(ctx, "k", []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res["a"].Status != Miss || res["b"].Status != Miss {
		t.Errorf("expected two misses, got %+v", res)
	}
}

func TestComposed_TierPrecedence(t *testing.T) {
	ctx := context.Background()
	storeA, storeB := newMapStore(), newMapStore()
	c := NewComposed([]Adapter[string, string, string]{newTier(storeA), newTier(storeB)})

	storeA.entries[keyFn("k", "x")] = Entry[string]{Item: "from-a"}
	storeB.entries[keyFn("k", "x")] = Entry[string]{Item: "from-b"}

	res, err := c.LoadMany(ctx, "k", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if res["x"].Item != "from-a" {
		t.Errorf("expected tier 0 to win, got %q", res["x"].Item)
	}
	if storeB.getCalls != 0 {
		t.Errorf("tier 1 must not be consulted on a tier 0 hit, got %d calls", storeB.getCalls)
	}
}

func TestComposed_BackfillsShallowerTiers(t *testing.T) {
	ctx := context.Background()
	storeA, storeB := newMapStore(), newMapStore()
	c := NewComposed([]Adapter[string, string, string]{newTier(storeA), newTier(storeB)})

	storeB.entries[keyFn("k", "k1")] = Entry[string]{Item: "v1"}
	storeB.entries[keyFn("k", "gone")] = Entry[string]{Negative: true}

	res, err := c.LoadMany(ctx, "k", []string{"k1", "gone", "none"})
	if err != nil {
		t.Fatal(err)
	}
	if res["k1"].Status != Hit || res["k1"].Item != "v1" {
		t.Errorf("expected hit v1, got %+v", res["k1"])
	}
	if res["gone"].Status != Negative {
		t.Errorf("expected negative, got %s", res["gone"].Status)
	}
	if res["none"].Status != Miss {
		t.Errorf("expected miss, got %s", res["none"].Status)
	}

	if e, ok := storeA.entries[keyFn("k", "k1")]; !ok || e.Item != "v1" {
		t.Errorf("expected k1 back-filled into tier 0, got %+v", e)
	}
	if e, ok := storeA.entries[keyFn("k", "gone")]; !ok || !e.Negative {
		t.Errorf("expected negative back-filled into tier 0, got %+v", e)
	}

	callsB := storeB.getCalls
	res, err = c.LoadMany(ctx, "k", []string{"k1"})
	if err != nil {
		t.Fatal(err)
	}
	if res["k1"].Item != "v1" || storeB.getCalls != callsB {
		t.Errorf("expected k1 served from tier 0, tier 1 calls %d -> %d", callsB, storeB.getCalls)
	}
}

// orderedTier records the order in which tiers receive writes.
type orderedTier struct {
	Adapter[string, string, string]
	name string
	log  *[]string
}

func (o orderedTier) CacheMany(ctx context.Context, key string, items map[string]string) error {
	*o.log = append(*o.log, "cache:"+o.name)
	return o.Adapter.CacheMany(ctx, key, items)
}

func (o orderedTier) InvalidateMany(ctx context.Context, key string, values []string) error {
	*o.log = append(*o.log, "invalidate:"+o.name)
	return o.Adapter.InvalidateMany(ctx, key, values)
}

func TestComposed_WritesDeepestFirst(t *testing.T) {
	ctx := context.Background()
	var log []string
	tiers := []Adapter[string, string, string]{
		orderedTier{Adapter: newTier(newMapStore()), name: "0", log: &log},
		orderedTier{Adapter: newTier(newMapStore()), name: "1", log: &log},
		orderedTier{Adapter: newTier(newMapStore()), name: "2", log: &log},
	}
	c := NewComposed(tiers)

	if err := c.CacheMany(ctx, "k", map[string]string{"a": "v"}); err != nil {
		t.Fatal(err)
	}
	if err := c.InvalidateMany(ctx, "k", []string{"a"}); err != nil {
		t.Fatal(err)
	}

	want := []string{"cache:2", "cache:1", "cache:0", "invalidate:2", "invalidate:1", "invalidate:0"}
	if fmt.Sprint(log) != fmt.Sprint(want) {
		t.Errorf("write order = %v, want %v", log, want)
	}
}

func TestComposed_TierErrorPropagates(t *testing.T) {
	store := newMapStore()
	store.getErr = errors.New("tier down")
	c := NewComposed([]Adapter[string, string, string]{newTier(store)})

	if _, err := c.LoadMany(context.Background(), "k", []string{"a"}); err == nil {
		t.Error("expected tier error to propagate")
	}
}

func TestReadThrough_FetchesOncePerDistinctValue(t *testing.T) {
	ctx := context.Background()
	rt := NewReadThrough[string, string, string](newTier(newMapStore()), nil)
	fetch := newCountingFetch(map[string][]string{"a": {"row-a"}, "b": {"row-b"}})

	got, err := rt.ReadManyThrough(ctx, "k", true, []string{"a", "b", "a", "c"}, fetch.fetch)
	if err != nil {
		t.Fatal(err)
	}

	direct, _ := newCountingFetch(fetch.rows).fetch(ctx, "k", []string{"a", "b", "c"})
	if fmt.Sprint(got) != fmt.Sprint(direct) {
		t.Errorf("read through = %v, direct fetch = %v", got, direct)
	}
	for _, v := range []string{"a", "b", "c"} {
		if fetch.calls[v] != 1 {
			t.Errorf("expected one fetch for %q, got %d", v, fetch.calls[v])
		}
	}

	if _, err := rt.ReadManyThrough(ctx, "k", true, []string{"a", "b"}, fetch.fetch); err != nil {
		t.Fatal(err)
	}
	if fetch.total() != 3 {
		t.Errorf("expected cached values not to be fetched again, total fetches %d", fetch.total())
	}
}

func TestReadThrough_NegativeCacheLaw(t *testing.T) {
	ctx := context.Background()
	tier := newTier(newMapStore())
	rt := NewReadThrough[string, string, string](tier, nil)
	fetch := newCountingFetch(map[string][]string{})

	for i := 0; i < 3; i++ {
		got, err := rt.ReadManyThrough(ctx, "k", true, []string{"ghost"}, fetch.fetch)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := got["ghost"]; ok {
			t.Fatalf("absent value must not be returned, got %v", got)
		}
	}
	if fetch.calls["ghost"] != 1 {
		t.Errorf("expected exactly one fetch before invalidation, got %d", fetch.calls["ghost"])
	}

	if err := rt.InvalidateMany(ctx, "k", []string{"ghost"}); err != nil {
		t.Fatal(err)
	}
	fetch.rows["ghost"] = []string{"now-here"}
	got, err := rt.ReadManyThrough(ctx, "k", true, []string{"ghost"}, fetch.fetch)
	if err != nil {
		t.Fatal(err)
	}
	if fetch.calls["ghost"] != 2 || got["ghost"][0] != "now-here" {
		t.Errorf("expected refetch after invalidation, calls=%d got=%v", fetch.calls["ghost"], got)
	}
}

func TestReadThrough_DiscardsDuplicateRows(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	rt := NewReadThrough[string, string, string](newTier(store), nil)
	fetch := newCountingFetch(map[string][]string{"dup": {"r1", "r2"}, "ok": {"r"}})

	got, err := rt.ReadManyThrough(ctx, "k", true, []string{"dup", "ok"}, fetch.fetch)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["dup"]; ok {
		t.Error("duplicate rows must not be returned")
	}
	if _, ok := store.entries[keyFn("k", "dup")]; ok {
		t.Error("duplicate rows must not be cached, positively or negatively")
	}
	if len(got["ok"]) != 1 {
		t.Errorf("expected the unique value to survive, got %v", got)
	}
}

func TestReadThrough_NotCacheableBypassesAdapter(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	rt := NewReadThrough[string, string, string](newTier(store), nil)
	fetch := newCountingFetch(map[string][]string{"team": {"u1", "u2"}, "empty": {}})

	got, err := rt.ReadManyThrough(ctx, "k", false, []string{"team", "empty"}, fetch.fetch)
	if err != nil {
		t.Fatal(err)
	}
	rows := got["team"]
	sort.Strings(rows)
	if fmt.Sprint(rows) != "[u1 u2]" {
		t.Errorf("expected every row for a non unique lookup, got %v", rows)
	}
	if _, ok := got["empty"]; ok {
		t.Error("entries with zero rows must be dropped")
	}
	if store.getCalls != 0 || store.setCalls != 0 {
		t.Errorf("adapter must not be used, get=%d set=%d", store.getCalls, store.setCalls)
	}
}

func TestReadThrough_ErrorsPropagate(t *testing.T) {
	ctx := context.Background()

	failing := newMapStore()
	failing.getErr = errors.New("boom")
	rt := NewReadThrough[string, string, string](newTier(failing), nil)
	fetch := newCountingFetch(nil)
	if _, err := rt.ReadManyThrough(ctx, "k", true, []string{"a"}, fetch.fetch); err == nil {
		t.Error("expected adapter error")
	}
	if fetch.total() != 0 {
		t.Error("fetch must not run when the adapter fails")
	}

	rt = NewReadThrough[string, string, string](newTier(newMapStore()), nil)
	fetch.err = errors.New("store down")
	if _, err := rt.ReadManyThrough(ctx, "k", true, []string{"a"}, fetch.fetch); err == nil {
		t.Error("expected fetch error")
	}
}
