// Package loader reads entities through the cache tiers and the backing
// store and authorizes every entity it returns against its kind's read
// rules.
//
// Each lookup comes in two flavors. Raw methods report the outcome of every
// requested value as a Result, so a missing, malformed or unauthorized row
// never fails its siblings. Enforcing methods return the first such failure
// as an error. Errors outside the entity error taxonomy are returned by both.
package loader

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-entity/cache"
	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/internal/datamanager"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
)

// Result is the outcome of loading one entity.
type Result struct {
	Entity entity.Entity
	Err    error
}

// OK reports whether the entity was loaded and authorized.
func (r Result) OK() bool { return r.Err == nil && r.Entity != nil }

// Loader loads entities of every registered kind.
type Loader struct {
	provider   *datamanager.Provider
	transactor store.Transactor
	logger     *slog.Logger
}

type options struct {
	tiers  []cache.Store[entity.Fields]
	keys   cache.KeySerializer
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*options)

// WithCacheTiers sets the cache tiers, closest to the application first.
func WithCacheTiers(tiers ...cache.Store[entity.Fields]) Option {
	return func(o *options) {
		o.tiers = append(o.tiers, tiers...)
	}
}

// WithKeySerializer overrides the cache key serializer.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(o *options) {
		o.keys = keys
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a Loader reading from adapter. transactor opens the
// transactions of query contexts created with NewQueryContext.
func New(registry *schema.Registry, adapter store.Adapter, transactor store.Transactor, opts ...Option) *Loader {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	popts := []datamanager.Option{
		datamanager.WithCacheTiers(o.tiers...),
		datamanager.WithLogger(o.logger),
	}
	if o.keys != nil {
		popts = append(popts, datamanager.WithKeySerializer(o.keys))
	}

	return &Loader{
		provider:   datamanager.NewProvider(registry, adapter, popts...),
		transactor: transactor,
		logger:     o.logger,
	}
}

// Registry returns the schema registry.
func (l *Loader) Registry() *schema.Registry { return l.provider.Registry() }

// Adapter returns the store adapter.
func (l *Loader) Adapter() store.Adapter { return l.provider.Adapter() }

// Logger returns the loader's logger.
func (l *Loader) Logger() *slog.Logger { return l.logger }

// NewQueryContext returns a non transactional query context.
func (l *Loader) NewQueryContext() *store.QueryContext {
	return store.NewQueryContext(l.transactor, l.logger)
}

// For returns a loader for kind acting on behalf of vc.
func (l *Loader) For(vc *entity.ViewerContext, kind string) *KindLoader {
	k := &KindLoader{loader: l, vc: vc, kind: kind}
	k.manager, k.err = l.provider.Manager(kind)
	return k
}

// Invalidate drops the cache entries of rows of kind.
func (l *Loader) Invalidate(ctx context.Context, kind string, rows ...entity.Fields) error {
	m, err := l.provider.Manager(kind)
	if err != nil {
		return err
	}
	return m.InvalidateFields(ctx, rows...)
}

// InvalidateCallback returns a post commit callback invalidating rows of
// kind.
func (l *Loader) InvalidateCallback(kind string, rows ...entity.Fields) store.Callback {
	return func(ctx context.Context) error {
		return l.Invalidate(ctx, kind, rows...)
	}
}
