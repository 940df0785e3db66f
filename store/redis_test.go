package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStoreFromClient(client, time.Second), mr
}

func TestRedisStore_IncrementAndExpire(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()

	n, err := s.Increment(ctx, "ratelimit:alice:0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.SetExpiry(ctx, "ratelimit:alice:0", 120*time.Second))
	assert.Equal(t, 120*time.Second, mr.TTL("ratelimit:alice:0"))

	n, err = s.Increment(ctx, "ratelimit:alice:0")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// stored as a plain integer string for interoperability
	raw, err := mr.Get("ratelimit:alice:0")
	require.NoError(t, err)
	assert.Equal(t, "2", raw)

	mr.FastForward(120 * time.Second)
	assert.False(t, mr.Exists("ratelimit:alice:0"))
}

func TestRedisStore_IncrementWithExpiryArmsOnlyOnce(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()
	key := "ratelimit:bob:0"

	n, err := s.IncrementWithExpiry(ctx, key, 100*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 100*time.Second, mr.TTL(key))

	mr.FastForward(40 * time.Second)

	for i := 2; i <= 5; i++ {
		n, err = s.IncrementWithExpiry(ctx, key, 100*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	assert.Equal(t, 60*time.Second, mr.TTL(key), "TTL must not be re-armed")

	ttl, err := s.TTL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, ttl)
}

func TestRedisStore_IncrementWithExpiryHealsKeyWithoutTTL(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()
	key := "ratelimit:carol:0"

	require.NoError(t, mr.Set(key, "7"))
	assert.Equal(t, time.Duration(0), mr.TTL(key))

	n, err := s.IncrementWithExpiry(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, 30*time.Second, mr.TTL(key))
}

func TestRedisStore_Inspector(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()

	n, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	ttl, err := s.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, KeyMissing, ttl)

	require.NoError(t, mr.Set("k", "3"))
	ttl, err = s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, NoExpiry, ttl)

	n, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestRedisStore_ProtocolErrorIsUnavailable(t *testing.T) {
	s, mr := newMiniRedisStore(t)

	require.NoError(t, mr.Set("k", "not-a-number"))
	_, err := s.Increment(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisStore_ConnectionFailureIsUnavailable(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	ctx := context.Background()
	mr.Close()

	_, err := s.Increment(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.IncrementWithExpiry(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, s.SetExpiry(ctx, "k", time.Minute), ErrUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
}

func TestRedisStore_CancelledContext(t *testing.T) {
	s, _ := newMiniRedisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Increment(ctx, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRedisStore_Config(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(RedisConfig{URL: fmt.Sprintf("redis://%s/0", mr.Addr())})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))

	s2, err := NewRedisStore(RedisConfig{Addr: mr.Addr(), PoolSize: 4, OpTimeout: time.Second})
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.Ping(context.Background()))

	_, err = NewRedisStore(RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}

// TestRedisStore_LiveServer exercises a real Redis instance.
// Note: This requires a Redis instance running on localhost:6379
// Skip with: go test -short
func TestRedisStore_LiveServer(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test")
	}

	s, err := NewRedisStore(RedisConfig{Addr: "localhost:6379", DB: 15, OpTimeout: time.Second})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skip("Redis not available:", err)
	}

	key := fmt.Sprintf("ratelimit:it-%d:0", time.Now().UnixNano())
	defer s.Delete(ctx, key)

	n, err := s.IncrementWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ttl, err := s.TTL(ctx, key)
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 2)
}
