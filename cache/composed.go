package cache

import (
	"context"
	"log/slog"
)

// Composed chains tiers into one Adapter. Tier 0 is the closest to the
// application, the last tier the closest to the store.
//
// LoadMany asks each tier only for the values the shallower tiers missed and
// back-fills whatever a deeper tier resolved into every shallower tier.
// Writes and invalidations go to every tier, deepest first, so a racing reader
// sees at worst a redundant miss and never a stale hit.
type Composed[K any, V comparable, T any] struct {
	tiers  []Adapter[K, V, T]
	logger *slog.Logger
}

var _ Adapter[string, string, any] = (*Composed[string, string, any])(nil)

// ComposedOption configures a Composed adapter.
type ComposedOption func(*composedOptions)

type composedOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report back-fill failures.
func WithLogger(logger *slog.Logger) ComposedOption {
	return func(o *composedOptions) {
		o.logger = logger
	}
}

// NewComposed creates a Composed adapter. With no tiers every value misses.
func NewComposed[K any, V comparable, T any](tiers []Adapter[K, V, T], opts ...ComposedOption) *Composed[K, V, T] {
	o := composedOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Composed[K, V, T]{
		tiers:  append([]Adapter[K, V, T](nil), tiers...),
		logger: o.logger,
	}
}

// Tiers returns the number of composed tiers.
func (c *Composed[K, V, T]) Tiers() int { return len(c.tiers) }

func (c *Composed[K, V, T]) LoadMany(ctx context.Context, key K, values []V) (map[V]LoadResult[T], error) {
	pending := dedupe(values)
	results := make(map[V]LoadResult[T], len(pending))

	// resolved[i] holds the values tier i answered, for back-filling.
	resolved := make([]map[V]LoadResult[T], len(c.tiers))

	for i, tier := range c.tiers {
		if len(pending) == 0 {
			break
		}

		tierResults, err := tier.LoadMany(ctx, key, pending)
		if err != nil {
			return nil, err
		}

		var next []V
		for _, v := range pending {
			r, ok := tierResults[v]
			if !ok || !r.Resolved() {
				next = append(next, v)
				continue
			}
			results[v] = r
			if i > 0 {
				if resolved[i] == nil {
					resolved[i] = make(map[V]LoadResult[T])
				}
				resolved[i][v] = r
			}
		}
		pending = next
	}

	for _, v := range pending {
		results[v] = MissResult[T]()
	}

	c.backfill(ctx, key, resolved)
	return results, nil
}

// backfill writes values resolved by tier i into tiers i-1 down to 0.
func (c *Composed[K, V, T]) backfill(ctx context.Context, key K, resolved []map[V]LoadResult[T]) {
	for i := len(resolved) - 1; i > 0; i-- {
		if len(resolved[i]) == 0 {
			continue
		}

		hits := make(map[V]T)
		var negatives []V
		for v, r := range resolved[i] {
			if r.Status == Negative {
				negatives = append(negatives, v)
			} else {
				hits[v] = r.Item
			}
		}

		for j := i - 1; j >= 0; j-- {
			if err := c.tiers[j].CacheMany(ctx, key, hits); err != nil {
				c.logger.WarnContext(ctx, "cache back-fill failed", "tier", j, "source_tier", i, "error", err)
			}
			if err := c.tiers[j].CacheMisses(ctx, key, negatives); err != nil {
				c.logger.WarnContext(ctx, "cache negative back-fill failed", "tier", j, "source_tier", i, "error", err)
			}
		}
	}
}

func (c *Composed[K, V, T]) CacheMany(ctx context.Context, key K, items map[V]T) error {
	for i := len(c.tiers) - 1; i >= 0; i-- {
		if err := c.tiers[i].CacheMany(ctx, key, items); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composed[K, V, T]) CacheMisses(ctx context.Context, key K, values []V) error {
	for i := len(c.tiers) - 1; i >= 0; i-- {
		if err := c.tiers[i].CacheMisses(ctx, key, values); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composed[K, V, T]) InvalidateMany(ctx context.Context, key K, values []V) error {
	for i := len(c.tiers) - 1; i >= 0; i-- {
		if err := c.tiers[i].InvalidateMany(ctx, key, values); err != nil {
			return err
		}
	}
	return nil
}

func dedupe[V comparable](values []V) []V {
	seen := make(map[V]struct{}, len(values))
	out := make([]V, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
