// Package secondarycache caches lookups that do not map onto a declared
// field, such as a row found by a computed expression, behind the same
// tiered read-through cache the loader uses. Every cached row is still
// constructed and read authorized for the requesting viewer.
package secondarycache

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-entity/cache"
	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/loader"
)

// Namespace prefixes every secondary cache key.
const Namespace = "entity-secondary"

// FetchFn resolves each load param to at most one full row of the kind.
// Params with no row are left out of the result.
type FetchFn[P comparable] func(ctx context.Context, params []P) (map[P]entity.Fields, error)

// Loader loads entities of one kind by load params P.
type Loader[P comparable] struct {
	name   string
	kind   string
	loader *loader.Loader
	reader *cache.ReadThrough[string, P, entity.Fields]
	fetch  FetchFn[P]
	logger *slog.Logger
}

type options struct {
	keys   cache.KeySerializer
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*options)

// WithKeySerializer overrides the cache key serializer.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(o *options) {
		o.keys = keys
	}
}

// WithLogger sets the logger. It defaults to the entity loader's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a Loader for kind. name distinguishes the lookup from other
// secondary caches of the kind and is part of every cache key. tiers are
// ordered closest to the application first.
func New[P comparable](l *loader.Loader, kind, name string, tiers []cache.Store[entity.Fields], fetch FetchFn[P], opts ...Option) *Loader[P] {
	o := options{keys: cache.NewDefaultKeySerializer(), logger: l.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("kind", kind, "secondary_cache", name)

	keyFn := func(name string, params P) string {
		return o.keys.SerializeKey(Namespace, kind, name, params)
	}
	adapters := make([]cache.Adapter[string, P, entity.Fields], len(tiers))
	for i, tier := range tiers {
		adapters[i] = cache.NewStoreAdapter[string, P, entity.Fields](tier, keyFn)
	}

	return &Loader[P]{
		name:   name,
		kind:   kind,
		loader: l,
		reader: cache.NewReadThrough[string, P, entity.Fields](cache.NewComposed(adapters, cache.WithLogger(logger)), logger),
		fetch:  fetch,
		logger: logger,
	}
}

func (s *Loader[P]) fetchMany(ctx context.Context, _ string, params []P) (map[P][]entity.Fields, error) {
	rows, err := s.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	out := make(map[P][]entity.Fields, len(rows))
	for p, fields := range rows {
		if fields != nil {
			out[p] = []entity.Fields{fields}
		}
	}
	return out, nil
}

// LoadManyRaw loads the entity of each param for vc. Params without a row
// get a NotFoundError result.
func (s *Loader[P]) LoadManyRaw(ctx context.Context, vc *entity.ViewerContext, params []P) (map[P]loader.Result, error) {
	rows, err := s.reader.ReadManyThrough(ctx, s.name, true, params, s.fetchMany)
	if err != nil {
		return nil, err
	}

	k := s.loader.For(vc, s.kind)
	out := make(map[P]loader.Result, len(params))
	for _, p := range params {
		if _, done := out[p]; done {
			continue
		}
		found := rows[p]
		if len(found) == 0 {
			out[p] = loader.Result{Err: entity.NewNotFoundError(s.kind, s.name, p)}
			continue
		}
		res, err := k.ConstructAndAuthorize(ctx, found[0])
		if err != nil {
			return nil, err
		}
		out[p] = res
	}
	return out, nil
}

// LoadNullable loads the entity of params, nil when there is none.
func (s *Loader[P]) LoadNullable(ctx context.Context, vc *entity.ViewerContext, params P) (entity.Entity, error) {
	results, err := s.LoadManyRaw(ctx, vc, []P{params})
	if err != nil {
		return nil, err
	}
	res := results[params]
	if entity.IsNotFound(res.Err) {
		return nil, nil
	}
	return res.Entity, res.Err
}

// Invalidate drops the cached rows of params. Call it after writes that
// change which row a param resolves to.
func (s *Loader[P]) Invalidate(ctx context.Context, params ...P) error {
	if err := s.reader.InvalidateMany(ctx, s.name, params); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "secondary cache invalidated", "params", len(params))
	return nil
}
