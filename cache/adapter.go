package cache

import "context"

// Adapter is a single cache tier keyed by a load key K and values V that
// caches items T.
//
// LoadMany must return exactly one result per requested value. CacheMany
// overwrites existing entries, CacheMisses records values as absent and
// InvalidateMany is a no-op for values that are not cached.
type Adapter[K any, V comparable, T any] interface {
	LoadMany(ctx context.Context, key K, values []V) (map[V]LoadResult[T], error)
	CacheMany(ctx context.Context, key K, items map[V]T) error
	CacheMisses(ctx context.Context, key K, values []V) error
	InvalidateMany(ctx context.Context, key K, values []V) error
}

// Entry is what string keyed stores persist per cache key.
type Entry[T any] struct {
	Item     T    `msgpack:"i"`
	Negative bool `msgpack:"n,omitempty"`
}

// Store is a string keyed backend, such as an in-process or a Redis cache.
// GetMany omits keys it does not hold.
type Store[T any] interface {
	GetMany(ctx context.Context, keys []string) (map[string]Entry[T], error)
	SetMany(ctx context.Context, entries map[string]Entry[T]) error
	DeleteMany(ctx context.Context, keys []string) error
}

// KeyFunc maps a load key and one of its values to a store key.
type KeyFunc[K any, V comparable] func(key K, value V) string

// StoreAdapter turns a Store into an Adapter.
type StoreAdapter[K any, V comparable, T any] struct {
	store Store[T]
	keyFn KeyFunc[K, V]
}

var _ Adapter[string, string, any] = (*StoreAdapter[string, string, any])(nil)

// NewStoreAdapter creates an Adapter over store using keyFn to build keys.
func NewStoreAdapter[K any, V comparable, T any](store Store[T], keyFn KeyFunc[K, V]) *StoreAdapter[K, V, T] {
	return &StoreAdapter[K, V, T]{store: store, keyFn: keyFn}
}

func (a *StoreAdapter[K, V, T]) keys(key K, values []V) ([]string, map[string]V) {
	keys := make([]string, 0, len(values))
	byKey := make(map[string]V, len(values))
	for _, v := range values {
		k := a.keyFn(key, v)
		if _, seen := byKey[k]; seen {
			continue
		}
		keys = append(keys, k)
		byKey[k] = v
	}
	return keys, byKey
}

func (a *StoreAdapter[K, V, T]) LoadMany(ctx context.Context, key K, values []V) (map[V]LoadResult[T], error) {
	results := make(map[V]LoadResult[T], len(values))
	if len(values) == 0 {
		return results, nil
	}

	keys, byKey := a.keys(key, values)
	entries, err := a.store.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}

	for _, v := range values {
		results[v] = MissResult[T]()
	}
	for k, entry := range entries {
		v, ok := byKey[k]
		if !ok {
			continue
		}
		if entry.Negative {
			results[v] = NegativeResult[T]()
		} else {
			results[v] = HitResult(entry.Item)
		}
	}
	return results, nil
}

func (a *StoreAdapter[K, V, T]) CacheMany(ctx context.Context, key K, items map[V]T) error {
	if len(items) == 0 {
		return nil
	}
	entries := make(map[string]Entry[T], len(items))
	for v, item := range items {
		entries[a.keyFn(key, v)] = Entry[T]{Item: item}
	}
	return a.store.SetMany(ctx, entries)
}

func (a *StoreAdapter[K, V, T]) CacheMisses(ctx context.Context, key K, values []V) error {
	if len(values) == 0 {
		return nil
	}
	entries := make(map[string]Entry[T], len(values))
	for _, v := range values {
		entries[a.keyFn(key, v)] = Entry[T]{Negative: true}
	}
	return a.store.SetMany(ctx, entries)
}

func (a *StoreAdapter[K, V, T]) InvalidateMany(ctx context.Context, key K, values []V) error {
	if len(values) == 0 {
		return nil
	}
	keys, _ := a.keys(key, values)
	return a.store.DeleteMany(ctx, keys)
}
