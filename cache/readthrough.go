package cache

import (
	"context"
	"log/slog"
)

// FetchFn loads rows for values from the source of truth. It may return any
// number of rows per value and may omit values it found nothing for.
type FetchFn[K any, V comparable, T any] func(ctx context.Context, key K, values []V) (map[V][]T, error)

// ReadThrough serves lookups from an Adapter and falls back to a FetchFn for
// misses, caching what it fetched. Cacheable lookups are unique: each value
// resolves to at most one row.
type ReadThrough[K any, V comparable, T any] struct {
	adapter Adapter[K, V, T]
	logger  *slog.Logger
}

// NewReadThrough creates a ReadThrough over adapter. A nil logger uses
// slog.Default().
func NewReadThrough[K any, V comparable, T any](adapter Adapter[K, V, T], logger *slog.Logger) *ReadThrough[K, V, T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadThrough[K, V, T]{adapter: adapter, logger: logger}
}

// Adapter returns the underlying adapter.
func (r *ReadThrough[K, V, T]) Adapter() Adapter[K, V, T] { return r.adapter }

// ReadManyThrough resolves values through the cache, fetching misses with
// fetch. When cacheable is false the cache is not consulted at all.
//
// Values the store does not hold are cached negatively and left out of the
// result. A value for which the store returns more than one row is dropped
// and not cached, since a cacheable lookup must be unique. Every returned
// entry has at least one row.
func (r *ReadThrough[K, V, T]) ReadManyThrough(ctx context.Context, key K, cacheable bool, values []V, fetch FetchFn[K, V, T]) (map[V][]T, error) {
	values = dedupe(values)
	if len(values) == 0 {
		return map[V][]T{}, nil
	}

	if !cacheable {
		fetched, err := fetch(ctx, key, values)
		if err != nil {
			return nil, err
		}
		return nonEmpty(fetched), nil
	}

	cached, err := r.adapter.LoadMany(ctx, key, values)
	if err != nil {
		return nil, err
	}

	out := make(map[V][]T, len(values))
	var misses []V
	for _, v := range values {
		res, ok := cached[v]
		if !ok {
			misses = append(misses, v)
			continue
		}
		switch res.Status {
		case Hit:
			out[v] = []T{res.Item}
		case Negative:
		default:
			misses = append(misses, v)
		}
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := fetch(ctx, key, misses)
	if err != nil {
		return nil, err
	}

	toCache := make(map[V]T, len(misses))
	var absent []V
	for _, v := range misses {
		rows := fetched[v]
		switch len(rows) {
		case 0:
			absent = append(absent, v)
		case 1:
			toCache[v] = rows[0]
			out[v] = rows
		default:
			r.logger.WarnContext(ctx, "unique lookup returned multiple rows, result discarded",
				"key", key,
				"value", v,
				"rows", len(rows),
			)
		}
	}

	if err := r.adapter.CacheMany(ctx, key, toCache); err != nil {
		return nil, err
	}
	if err := r.adapter.CacheMisses(ctx, key, absent); err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "read through",
		"key", key,
		"requested", len(values),
		"fetched", len(misses),
		"negative", len(absent),
	)
	return out, nil
}

// InvalidateMany drops values from every tier of the adapter.
func (r *ReadThrough[K, V, T]) InvalidateMany(ctx context.Context, key K, values []V) error {
	return r.adapter.InvalidateMany(ctx, key, dedupe(values))
}

func nonEmpty[V comparable, T any](in map[V][]T) map[V][]T {
	out := make(map[V][]T, len(in))
	for v, rows := range in {
		if len(rows) > 0 {
			out[v] = rows
		}
	}
	return out
}
