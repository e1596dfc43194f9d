package di

import (
	"errors"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity/cache"
	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/internal/cacheinfra"
	"github.com/goliatone/go-entity/loader"
	"github.com/goliatone/go-entity/mutation"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/secondarycache"
	"github.com/goliatone/go-entity/store"
	"github.com/goliatone/go-entity/store/bunstore"
	"github.com/goliatone/go-entity/store/memstore"
)

// Container wires the store, the cache tiers, the loader and the mutator
// for a registry of entity kinds. Every getter returns the same instance.
type Container struct {
	config        Config
	logger        *slog.Logger
	registry      *schema.Registry
	db            *bun.DB
	mem           *memstore.Store
	adapter       store.Adapter
	transactor    store.Transactor
	redis         redis.UniversalClient
	tiers         []cache.Store[entity.Fields]
	keySerializer cache.KeySerializer
	loader        *loader.Loader
	mutator       *mutation.Mutator

	closers []func() error
}

// Option configures a Container.
type Option func(*Container)

// WithLogger replaces the logger built from Config.Log.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithDB uses db instead of opening Config.Store. The container does not
// close it.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// WithRedisClient uses client for the Redis tier instead of dialing
// Config.Redis. The container does not close it.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *Container) {
		c.redis = client
	}
}

// WithKeySerializer overrides the cache key serializer.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(c *Container) {
		c.keySerializer = keys
	}
}

// NewContainer validates config and registry and builds the container.
func NewContainer(config Config, registry *schema.Registry, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}

	c := &Container{config: config, registry: registry}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = config.Log.NewLogger(os.Stderr)
	}
	if c.keySerializer == nil {
		c.keySerializer = cache.NewDefaultKeySerializer()
	}

	if err := c.initStore(); err != nil {
		return nil, err
	}
	if err := c.initTiers(); err != nil {
		_ = c.Close()
		return nil, err
	}

	c.loader = loader.New(registry, c.adapter, c.transactor,
		loader.WithCacheTiers(c.tiers...),
		loader.WithKeySerializer(c.keySerializer),
		loader.WithLogger(c.logger),
	)
	c.mutator = mutation.New(c.loader, mutation.WithLogger(c.logger))

	c.logger.Debug("container ready",
		"driver", config.Store.Driver,
		"kinds", len(registry.Kinds()),
		"cache_tiers", len(c.tiers),
	)
	return c, nil
}

// NewContainerWithDefaults builds a container from DefaultConfig.
func NewContainerWithDefaults(registry *schema.Registry, opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), registry, opts...)
}

func (c *Container) initStore() error {
	if c.db == nil && c.config.Store.Driver == DriverMemory {
		c.mem = memstore.New()
		c.adapter, c.transactor = c.mem, c.mem
		return nil
	}

	if c.db == nil {
		db, err := bunstore.Open(c.config.Store.Driver, c.config.Store.DSN)
		if err != nil {
			return err
		}
		c.db = db
		c.closers = append(c.closers, db.Close)
	}
	bs := bunstore.New(c.db, c.logger)
	c.adapter, c.transactor = bs, bs
	return nil
}

func (c *Container) initTiers() error {
	local, err := cacheinfra.NewSturdycStore[entity.Fields](c.config.Cache)
	if err != nil {
		return err
	}
	c.tiers = append(c.tiers, local)

	if !c.config.Redis.Enabled {
		return nil
	}
	if c.redis == nil {
		client, err := cacheinfra.NewRedisClient(c.config.Redis.RedisConfig)
		if err != nil {
			return err
		}
		c.redis = client
		c.closers = append(c.closers, client.Close)
	}
	shared, err := cacheinfra.NewRedisStore[entity.Fields](c.redis, c.config.Redis.RedisConfig)
	if err != nil {
		return err
	}
	c.tiers = append(c.tiers, shared)
	return nil
}

// Config returns the configuration the container was built with.
func (c *Container) Config() Config { return c.config }

// Logger returns the container's logger.
func (c *Container) Logger() *slog.Logger { return c.logger }

// Registry returns the schema registry.
func (c *Container) Registry() *schema.Registry { return c.registry }

// Adapter returns the store adapter.
func (c *Container) Adapter() store.Adapter { return c.adapter }

// DB returns the SQL database, nil for the in-memory store.
func (c *Container) DB() *bun.DB { return c.db }

// MemStore returns the in-memory store, nil for SQL stores.
func (c *Container) MemStore() *memstore.Store { return c.mem }

// CacheTiers returns the cache tiers, closest to the application first.
func (c *Container) CacheTiers() []cache.Store[entity.Fields] {
	return append([]cache.Store[entity.Fields](nil), c.tiers...)
}

// KeySerializer returns the cache key serializer.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Loader returns the entity loader.
func (c *Container) Loader() *loader.Loader { return c.loader }

// Mutator returns the entity mutator.
func (c *Container) Mutator() *mutation.Mutator { return c.mutator }

// Close releases the connections the container opened itself.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// NewSecondaryCache creates a secondary cache over the container's tiers.
// It is a function because methods cannot declare type parameters.
//
//	byEmail := di.NewSecondaryCache[string](container, "user", "by_lower_email", fetch)
func NewSecondaryCache[P comparable](c *Container, kind, name string, fetch secondarycache.FetchFn[P]) *secondarycache.Loader[P] {
	return secondarycache.New(c.loader, kind, name, c.tiers, fetch,
		secondarycache.WithKeySerializer(c.keySerializer),
		secondarycache.WithLogger(c.logger),
	)
}
