package di

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-entity/internal/cacheinfra"
	"github.com/goliatone/go-entity/store/bunstore"
)

// DriverMemory selects the in-memory store.
const DriverMemory = "memory"

// Config is the configuration of a Container.
type Config struct {
	Log   LogConfig         `yaml:"log"`
	Store StoreConfig       `yaml:"store"`
	Cache cacheinfra.Config `yaml:"cache"`
	Redis RedisConfig       `yaml:"redis"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// StoreConfig selects the backing store.
type StoreConfig struct {
	// Driver is memory or one of the bunstore drivers.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig adds the shared Redis tier behind the in-process tier.
type RedisConfig struct {
	Enabled                bool `yaml:"enabled"`
	cacheinfra.RedisConfig `yaml:",inline"`
}

// DefaultConfig returns a configuration using the in-memory store and the
// in-process cache tier only.
func DefaultConfig() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{Driver: DriverMemory},
		Cache: cacheinfra.DefaultConfig(),
		Redis: RedisConfig{RedisConfig: cacheinfra.DefaultRedisConfig()},
	}
}

// LoadConfig reads a YAML configuration. Settings absent from r keep their
// default value.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("di: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration from path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := c.Log.level(); err != nil {
		return &cacheinfra.ConfigError{Field: "Log.Level", Message: err.Error()}
	}
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		return &cacheinfra.ConfigError{Field: "Log.Format", Message: "must be text or json"}
	}

	switch c.Store.Driver {
	case DriverMemory:
	case bunstore.DriverSQLite, bunstore.DriverPostgres, bunstore.DriverPgx, bunstore.DriverMySQL:
		if c.Store.DSN == "" {
			return &cacheinfra.ConfigError{Field: "Store.DSN", Message: "is required for " + c.Store.Driver}
		}
	default:
		return &cacheinfra.ConfigError{Field: "Store.Driver", Message: fmt.Sprintf("unsupported driver %q", c.Store.Driver)}
	}

	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Redis.Enabled {
		return c.Redis.Validate()
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// NewLogger builds the logger described by l, writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := l.level()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
