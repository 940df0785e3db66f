package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_006_400, 0)}
	return NewMemoryStoreWithClock(clock.Now), clock
}

func TestMemoryStore_IncrementCreatesAndCounts(t *testing.T) {
	s, _ := newTestMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	n, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, NoExpiry, ttl)
}

func TestMemoryStore_ExpiryRemovesCounter(t *testing.T) {
	s, clock := newTestMemoryStore()
	ctx := context.Background()

	_, err := s.Increment(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.SetExpiry(ctx, "k", 10*time.Second))

	clock.Advance(9 * time.Second)
	n, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clock.Advance(time.Second)
	n, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, KeyMissing, ttl)

	// a fresh increment starts over
	n, err = s.Increment(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_SetExpiryOnMissingKeyIsNoop(t *testing.T) {
	s, _ := newTestMemoryStore()
	require.NoError(t, s.SetExpiry(context.Background(), "missing", time.Minute))
	assert.Equal(t, 0, s.Count())
}

func TestMemoryStore_IncrementWithExpiryArmsOnce(t *testing.T) {
	s, clock := newTestMemoryStore()
	ctx := context.Background()

	n, err := s.IncrementWithExpiry(ctx, "k", 100*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clock.Advance(30 * time.Second)
	n, err = s.IncrementWithExpiry(ctx, "k", 100*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 70*time.Second, ttl, "second increment must not re-arm the TTL")
}

func TestMemoryStore_IncrementWithExpiryHealsOrphanedKey(t *testing.T) {
	s, _ := newTestMemoryStore()
	ctx := context.Background()

	// Simulates a crash between INCR and EXPIRE.
	_, err := s.Increment(ctx, "k")
	require.NoError(t, err)

	n, err := s.IncrementWithExpiry(ctx, "k", 50*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 50*time.Second, ttl)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s, _ := newTestMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Increment(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestMemoryStore_DeleteAndCleanup(t *testing.T) {
	s, clock := newTestMemoryStore()
	ctx := context.Background()

	_, _ = s.IncrementWithExpiry(ctx, "a", 5*time.Second)
	_, _ = s.IncrementWithExpiry(ctx, "b", 50*time.Second)
	_, _ = s.Increment(ctx, "c")
	require.Equal(t, 3, s.Count())

	require.NoError(t, s.Delete(ctx, "c"))
	assert.Equal(t, 2, s.Count())

	clock.Advance(10 * time.Second)
	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Count())
}

func TestMemoryStore_ConcurrentIncrementsAreTotallyOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 50
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Increment(ctx, "shared")
			assert.NoError(t, err)
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for n := range results {
		assert.False(t, seen[n], "value %d observed twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestMemoryStore_StartBackgroundCleanup(t *testing.T) {
	s := NewMemoryStore()
	stop := s.StartBackgroundCleanup(0)
	stop()

	stop = s.StartBackgroundCleanup(time.Millisecond)
	stop()
	stop() // idempotent
}
