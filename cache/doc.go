// Package cache provides the layered read-through cache that sits in front of
// the entity store.
//
// # Overview
//
// The package is built around one small contract and two combinators:
//
//   - Adapter: a single cache tier answering Hit, Miss or Negative per value
//   - Composed: chains tiers into one Adapter with back-fill and deepest-first writes
//   - ReadThrough: serves values from an Adapter and fetches misses from the store
//
// All three are generic over a load key K, a value V and a cached item T. The
// entity data managers use them with entity rows, the secondary caches reuse
// them unchanged with arbitrary lookup parameters.
//
// # Tiers
//
// Concrete tiers usually store opaque string keys. StoreAdapter turns a Store
// into an Adapter using a KeyFunc, and KeySerializer builds stable key
// fragments from values:
//
//	serializer := cache.NewDefaultKeySerializer()
//	adapter := cache.NewStoreAdapter[loadkey.Key, any, entity.Fields](store,
//		func(key loadkey.Key, value any) string {
//			parts := []any{"user", key.CacheKeyType(), strings.Join(key.Fields(), ",")}
//			tuple, err := key.Tuple(value)
//			if err != nil {
//				return serializer.SerializeKey("entity", append(parts, value)...)
//			}
//			return serializer.SerializeKey("entity", append(parts, tuple...)...)
//		})
//
// # Composition
//
// Tier 0 is the closest to the application:
//
//	composed := cache.NewComposed([]cache.Adapter[K, V, T]{local, redis})
//
// A lookup only forwards values to tier 1 that tier 0 missed. Whatever tier 1
// resolves, including negative entries, is written back into tier 0.
// CacheMany, CacheMisses and InvalidateMany write every tier, deepest first,
// so a reader racing an invalidation sees at worst a redundant miss.
//
// # Negative Caching
//
// ReadThrough records values the store does not hold as Negative entries.
// A Negative entry is never fetched again until it is invalidated, which is why
// mutations invalidate both the previous and the new field values of a row.
//
// # Uniqueness
//
// Cacheable lookups must be unique. When the store returns more than one row
// for a cacheable value the result is logged and discarded without being
// cached in either direction.
//
// # Key Serialization Strategy
//
// The default key serializer uses reflection to handle various Go types:
//
//   - Strings, Stringers (uuid.UUID) and times: canonical text
//   - Basic types: Direct string representation
//   - Slices/arrays: Recursive serialization of elements
//   - Maps: Sorted key-value pairs for deterministic output
//   - Structs: Exported fields with name:value pairs
//   - Complex types: JSON fallback with error handling
//
// Keys are shared through remote tiers, so values whose text depends on the
// process (functions, channels) must not be used as cache key parts.
package cache
