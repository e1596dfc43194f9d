package cacheinfra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-entity/cache"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisStore is a cache.Store shared between processes through Redis.
// Entries are msgpack encoded.
type RedisStore[T any] struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

var _ cache.Store[any] = (*RedisStore[any])(nil)

// NewRedisClient creates a client for cfg. A single address yields a plain
// client, several addresses a cluster client.
func NewRedisClient(cfg RedisConfig) (redis.UniversalClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}), nil
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore[T any](client redis.UniversalClient, cfg RedisConfig) (*RedisStore[T], error) {
	if client == nil {
		return nil, &ConfigError{Field: "Redis.Client", Message: "cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisStore[T]{client: client, cfg: cfg}, nil
}

// GetMany implements cache.Store using one pipelined round trip.
func (s *RedisStore[T]) GetMany(ctx context.Context, keys []string) (map[string]cache.Entry[T], error) {
	out := make(map[string]cache.Entry[T], len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, s.redisKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get many: %w", err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", keys[i], err)
		}

		entry, err := decodeEntry[T](data)
		if err != nil {
			return nil, fmt.Errorf("redis decode %s: %w", keys[i], err)
		}
		out[keys[i]] = entry
	}

	return out, nil
}

// SetMany implements cache.Store. Negative entries use NegativeTTL and are
// skipped when it is zero.
func (s *RedisStore[T]) SetMany(ctx context.Context, entries map[string]cache.Entry[T]) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	queued := 0
	for key, entry := range entries {
		ttl := s.cfg.TTL
		if entry.Negative {
			if s.cfg.NegativeTTL == 0 {
				pipe.Del(ctx, s.redisKey(key))
				queued++
				continue
			}
			ttl = s.cfg.NegativeTTL
		}

		data, err := encodeEntry(entry)
		if err != nil {
			return fmt.Errorf("redis encode %s: %w", key, err)
		}
		pipe.Set(ctx, s.redisKey(key), data, ttl)
		queued++
	}

	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set many: %w", err)
	}
	return nil
}

// DeleteMany implements cache.Store.
func (s *RedisStore[T]) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	// Keys can hash to different cluster slots, so delete one by one.
	pipe := s.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, s.redisKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete many: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore[T]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore[T]) redisKey(key string) string {
	return RedisKey(s.cfg.KeyPrefix, s.cfg.MaxKeyLength, key)
}

// RedisKey prefixes key and replaces it by its xxhash digest when it is longer
// than maxLen. A zero maxLen never hashes.
func RedisKey(prefix string, maxLen int, key string) string {
	if maxLen > 0 && len(key) > maxLen {
		key = "h:" + strconv.FormatUint(xxhash.Sum64String(key), 16)
	}
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

func encodeEntry[T any](entry cache.Entry[T]) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry[T any](data []byte) (cache.Entry[T], error) {
	var entry cache.Entry[T]
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&entry); err != nil {
		return cache.Entry[T]{}, err
	}
	return entry, nil
}
