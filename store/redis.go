package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed incr_expire.lua
var incrExpireSource string

var incrExpireScript = redis.NewScript(incrExpireSource)

// RedisStore is the counter store backed by Redis. Counters are plain string
// keys holding integers, so it interoperates with any deployment that uses
// INCR/EXPIRE on the same keys.
type RedisStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
	owned     bool
}

// Ensure RedisStore implements the store contracts
var (
	_ AtomicCounter = (*RedisStore)(nil)
	_ Inspector     = (*RedisStore)(nil)
)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	URL          string        // Redis URL (e.g., "redis://127.0.0.1/"); wins over Addr
	Addr         string        // Redis address (e.g., "localhost:6379")
	Password     string        // Redis password (empty for no auth)
	DB           int           // Redis database number
	PoolSize     int           // Connection pool size (0 = go-redis default)
	DialTimeout  time.Duration // 0 = go-redis default
	ReadTimeout  time.Duration // 0 = go-redis default
	WriteTimeout time.Duration // 0 = go-redis default
	OpTimeout    time.Duration // Per-operation deadline applied on top of the caller's context (0 = none)
}

// NewRedisStore creates a Redis-backed store that owns its client.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	var opts *redis.Options
	if config.URL != "" {
		parsed, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		addr := config.Addr
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		opts = &redis.Options{
			Addr:     addr,
			Password: config.Password,
			DB:       config.DB,
		}
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
	}
	if config.WriteTimeout > 0 {
		opts.WriteTimeout = config.WriteTimeout
	}

	s := NewRedisStoreFromClient(redis.NewClient(opts), config.OpTimeout)
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client (single node, sentinel or
// cluster). The caller keeps ownership of the client.
func NewRedisStoreFromClient(client redis.UniversalClient, opTimeout time.Duration) *RedisStore {
	return &RedisStore{client: client, opTimeout: opTimeout}
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout > 0 {
		return context.WithTimeout(ctx, s.opTimeout)
	}
	return ctx, func() {}
}

// Increment runs INCR on key.
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable("incr", err)
	}
	return n, nil
}

// SetExpiry runs EXPIRE on key.
func (s *RedisStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Expire(ctx, key, wholeSeconds(ttl)).Err(); err != nil {
		return unavailable("expire", err)
	}
	return nil
}

// IncrementWithExpiry increments key and arms its expiry in one round-trip
// using a server-side script, so no crash between the two steps can leave a
// counter without a TTL.
func (s *RedisStore) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	secs := int64(wholeSeconds(ttl) / time.Second)
	n, err := incrExpireScript.Run(ctx, s.client, []string{key}, secs).Int64()
	if err != nil {
		return 0, unavailable("incr+expire", err)
	}
	return n, nil
}

// Get returns the counter at key, 0 when absent.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("get", err)
	}
	return n, nil
}

// TTL returns the remaining lifetime of key.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("ttl", err)
	}
	return d, nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the Redis connection when the store created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// wholeSeconds rounds ttl down to seconds with a floor of one second, since
// EXPIRE 0 would delete the key outright.
func wholeSeconds(ttl time.Duration) time.Duration {
	secs := ttl / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}
