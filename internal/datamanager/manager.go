// Package datamanager loads rows of one entity kind through the cache tiers
// and the backing store, and invalidates cached rows after writes.
package datamanager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-entity/cache"
	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/loadkey"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
	"golang.org/x/sync/singleflight"
)

// CacheNamespace prefixes every entity cache key.
const CacheNamespace = "entity"

// Manager loads and invalidates rows of a single kind.
type Manager struct {
	cfg     *schema.Config
	adapter store.Adapter
	reader  *cache.ReadThrough[loadkey.Key, any, entity.Fields]
	keys    cache.KeySerializer
	group   singleflight.Group
	logger  *slog.Logger
}

// New creates a Manager for cfg. tiers are ordered closest to the
// application first; nil or empty tiers disable caching.
func New(cfg *schema.Config, adapter store.Adapter, tiers []cache.Store[entity.Fields], keys cache.KeySerializer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if keys == nil {
		keys = cache.NewDefaultKeySerializer()
	}

	m := &Manager{
		cfg:     cfg,
		adapter: adapter,
		keys:    keys,
		logger:  logger.With("kind", cfg.Kind),
	}

	adapters := make([]cache.Adapter[loadkey.Key, any, entity.Fields], len(tiers))
	for i, tier := range tiers {
		adapters[i] = cache.NewStoreAdapter[loadkey.Key, any, entity.Fields](tier, m.CacheKey)
	}
	composed := cache.NewComposed(adapters, cache.WithLogger(m.logger))
	m.reader = cache.NewReadThrough[loadkey.Key, any, entity.Fields](composed, m.logger)
	return m
}

// Config returns the kind's configuration.
func (m *Manager) Config() *schema.Config { return m.cfg }

// CacheKey builds the cache key of one load value.
func (m *Manager) CacheKey(key loadkey.Key, value any) string {
	parts := []any{
		m.cfg.Kind,
		"v" + strconv.Itoa(m.cfg.CacheKeyVersion),
		key.CacheKeyType(),
		strings.Join(key.Fields(), ","),
	}
	tuple, err := key.Tuple(value)
	if err != nil {
		parts = append(parts, value)
	} else {
		parts = append(parts, tuple...)
	}
	return m.keys.SerializeKey(CacheNamespace, parts...)
}

// NormalizeValues converts caller values to load values of key, dropping
// duplicates and keeping first occurrence order.
func (m *Manager) NormalizeValues(key loadkey.Key, values []any) ([]any, error) {
	if err := key.Validate(m.cfg); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(values))
	seen := make(map[any]struct{}, len(values))
	for _, v := range values {
		nv, err := key.Normalize(v)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[nv]; dup {
			continue
		}
		seen[nv] = struct{}{}
		out = append(out, nv)
	}
	return out, nil
}

// LoadManyEqualing returns the rows whose key fields equal each value, keyed
// by load value. Values with no rows are absent from the result.
//
// Cacheable keys go through the cache tiers outside transactions. Inside a
// transaction the store is read through qc so uncommitted writes are seen.
// Identical concurrent loads outside transactions share one call. A caller
// whose ctx ends stops waiting without failing the others.
func (m *Manager) LoadManyEqualing(ctx context.Context, qc *store.QueryContext, key loadkey.Key, values []any) (map[any][]entity.Fields, error) {
	values, err := m.NormalizeValues(key, values)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return map[any][]entity.Fields{}, nil
	}

	fetch := m.fetcher(qc)
	if qc.IsInTransaction() {
		return m.reader.ReadManyThrough(ctx, key, false, values, fetch)
	}

	// the shared load outlives any single caller, each caller waits on its own ctx
	cacheable := key.IsCacheable(m.cfg)
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(m.flightKey(key, values), func() (any, error) {
		return m.reader.ReadManyThrough(flightCtx, key, cacheable, values, fetch)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.logger.DebugContext(ctx, "load shared with concurrent caller", "key", key.String(), "values", len(values))
		}
		return res.Val.(map[any][]entity.Fields), nil
	}
}

func (m *Manager) flightKey(key loadkey.Key, values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = m.CacheKey(key, v)
	}
	sort.Strings(parts)
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, "|")), 16)
}

func (m *Manager) fetcher(qc *store.QueryContext) cache.FetchFn[loadkey.Key, any, entity.Fields] {
	return func(ctx context.Context, key loadkey.Key, values []any) (map[any][]entity.Fields, error) {
		tuples := make([][]any, len(values))
		requested := make(map[any]struct{}, len(values))
		for i, v := range values {
			tuple, err := key.Tuple(v)
			if err != nil {
				return nil, err
			}
			tuples[i] = tuple
			requested[v] = struct{}{}
		}

		rows, err := m.adapter.FetchManyWhere(ctx, qc, m.cfg.Table, m.cfg.Columns(key.Fields()), tuples)
		if err != nil {
			return nil, err
		}

		out := make(map[any][]entity.Fields, len(values))
		for _, row := range rows {
			fields := m.cfg.FromRow(store.NormalizeRow(row))
			v, ok := key.ValueFromFields(fields)
			if !ok {
				continue
			}
			if _, want := requested[v]; !want {
				continue
			}
			out[v] = append(out[v], fields)
		}
		return out, nil
	}
}

// LoadManyByFieldEquality returns rows matching every condition. Condition
// columns and order columns are field names. The cache is not used.
func (m *Manager) LoadManyByFieldEquality(ctx context.Context, qc *store.QueryContext, conditions []store.Condition, opts store.QueryOptions) ([]entity.Fields, error) {
	conds := make([]store.Condition, len(conditions))
	for i, c := range conditions {
		if !m.cfg.HasField(c.Column) {
			return nil, fmt.Errorf("datamanager: %s has no field %q", m.cfg.Kind, c.Column)
		}
		values := make([]any, len(c.Values))
		for j, v := range c.Values {
			values[j] = store.NormalizeValue(v)
		}
		conds[i] = store.Condition{Column: m.cfg.Column(c.Column), Values: values}
	}

	rows, err := m.adapter.FetchManyByFieldEquality(ctx, qc, m.cfg.Table, conds, m.columnOptions(opts))
	if err != nil {
		return nil, err
	}
	return m.fromRows(rows), nil
}

// LoadManyByRawWhere passes where through to the store. The cache is not
// used.
func (m *Manager) LoadManyByRawWhere(ctx context.Context, qc *store.QueryContext, where string, args []any, opts store.QueryOptions) ([]entity.Fields, error) {
	rows, err := m.adapter.FetchManyByRawWhere(ctx, qc, m.cfg.Table, where, args, m.columnOptions(opts))
	if err != nil {
		return nil, err
	}
	return m.fromRows(rows), nil
}

func (m *Manager) columnOptions(opts store.QueryOptions) store.QueryOptions {
	out := store.QueryOptions{Limit: opts.Limit, Offset: opts.Offset}
	for _, ob := range opts.OrderBy {
		out.OrderBy = append(out.OrderBy, store.OrderBy{Column: m.cfg.Column(ob.Column), Desc: ob.Desc})
	}
	return out
}

func (m *Manager) fromRows(rows []store.Row) []entity.Fields {
	out := make([]entity.Fields, len(rows))
	for i, row := range rows {
		out[i] = m.cfg.FromRow(store.NormalizeRow(row))
	}
	return out
}

// CacheableKeys returns every key whose lookups are cached for the kind.
func (m *Manager) CacheableKeys() []loadkey.Key {
	var keys []loadkey.Key
	for _, name := range m.cfg.CacheableFieldNames() {
		keys = append(keys, loadkey.Field(name))
	}
	for _, names := range m.cfg.CompositeCaches {
		keys = append(keys, loadkey.Composite(names...))
	}
	return keys
}

// InvalidateFields drops every cache entry a row could be served from. Pass
// both the old and the new row of an update, since either may be cached,
// possibly negatively.
func (m *Manager) InvalidateFields(ctx context.Context, rows ...entity.Fields) error {
	for _, key := range m.CacheableKeys() {
		var values []any
		for _, fields := range rows {
			if v, ok := key.ValueFromFields(fields); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		if err := m.reader.InvalidateMany(ctx, key, values); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateCallback returns a post commit callback invalidating rows.
func (m *Manager) InvalidateCallback(rows ...entity.Fields) store.Callback {
	return func(ctx context.Context) error {
		return m.InvalidateFields(ctx, rows...)
	}
}
