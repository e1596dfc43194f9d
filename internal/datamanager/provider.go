package datamanager

import (
	"log/slog"

	"github.com/goliatone/go-entity/cache"
	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// Provider hands out one Manager per registered kind. Managers share the
// store adapter and the cache tiers.
type Provider struct {
	registry *schema.Registry
	adapter  store.Adapter
	tiers    []cache.Store[entity.Fields]
	keys     cache.KeySerializer
	logger   *slog.Logger
	managers *xsync.MapOf[string, *Manager]
}

// Option configures a Provider.
type Option func(*Provider)

// WithCacheTiers sets the cache tiers, closest to the application first.
func WithCacheTiers(tiers ...cache.Store[entity.Fields]) Option {
	return func(p *Provider) {
		p.tiers = append([]cache.Store[entity.Fields](nil), tiers...)
	}
}

// WithKeySerializer overrides the cache key serializer.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(p *Provider) {
		p.keys = keys
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider creates a Provider over registry and adapter.
func NewProvider(registry *schema.Registry, adapter store.Adapter, opts ...Option) *Provider {
	p := &Provider{
		registry: registry,
		adapter:  adapter,
		keys:     cache.NewDefaultKeySerializer(),
		logger:   slog.Default(),
		managers: xsync.NewMapOf[string, *Manager](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the schema registry.
func (p *Provider) Registry() *schema.Registry { return p.registry }

// Adapter returns the store adapter.
func (p *Provider) Adapter() store.Adapter { return p.adapter }

// Logger returns the provider's logger.
func (p *Provider) Logger() *slog.Logger { return p.logger }

// Manager returns the Manager of kind.
func (p *Provider) Manager(kind string) (*Manager, error) {
	if m, ok := p.managers.Load(kind); ok {
		return m, nil
	}
	cfg, err := p.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	m, _ := p.managers.LoadOrCompute(kind, func() *Manager {
		return New(cfg, p.adapter, p.tiers, p.keys, p.logger)
	})
	return m, nil
}
