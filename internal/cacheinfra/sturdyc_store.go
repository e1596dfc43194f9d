package cacheinfra

import (
	"context"
	"strings"

	"github.com/goliatone/go-entity/cache"
	"github.com/viccon/sturdyc"
)

// SturdycStore is an in-process cache.Store backed by a sharded sturdyc
// client.
type SturdycStore[T any] struct {
	client   *sturdyc.Client[cache.Entry[T]]
	negative bool
}

var _ cache.Store[any] = (*SturdycStore[any])(nil)

// NewSturdycStore validates cfg and creates the store.
//
// The constructor translates Config parameters to sturdyc initialization:
// Capacity, NumShards, TTL and EvictionPercentage are passed to sturdyc.New(),
// other options are applied via ToSturdycOptions().
func NewSturdycStore[T any](cfg Config) (*SturdycStore[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[cache.Entry[T]](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycStore[T]{client: client, negative: cfg.NegativeCaching}, nil
}

// GetMany implements cache.Store.
func (s *SturdycStore[T]) GetMany(_ context.Context, keys []string) (map[string]cache.Entry[T], error) {
	out := make(map[string]cache.Entry[T], len(keys))
	for _, key := range keys {
		if entry, ok := s.client.Get(key); ok {
			out[key] = entry
		}
	}
	return out, nil
}

// SetMany implements cache.Store. Negative entries are dropped when negative
// caching is disabled.
func (s *SturdycStore[T]) SetMany(_ context.Context, entries map[string]cache.Entry[T]) error {
	for key, entry := range entries {
		if entry.Negative && !s.negative {
			s.client.Delete(key)
			continue
		}
		s.client.Set(key, entry)
	}
	return nil
}

// DeleteMany implements cache.Store.
func (s *SturdycStore[T]) DeleteMany(_ context.Context, keys []string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix, such as
// every key of one entity kind after a cache key version bump.
func (s *SturdycStore[T]) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Size returns the number of entries currently held.
func (s *SturdycStore[T]) Size() int {
	return s.client.Size()
}
