package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. It honours the same contract
// as RedisStore but its state is local, so it only enforces a quota for a
// single process. Use it for tests and single-instance development.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	now      func() time.Time
}

type counterEntry struct {
	value     int64
	expiresAt time.Time // zero when no expiry is armed
}

// Ensure MemoryStore implements the store contracts
var (
	_ AtomicCounter = (*MemoryStore)(nil)
	_ Inspector     = (*MemoryStore)(nil)
)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an in-memory store that reads time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counterEntry),
		now:      now,
	}
}

// live returns the entry for key, dropping it first if it has expired.
// MUST be called with s.mu locked.
func (s *MemoryStore) live(key string) *counterEntry {
	e, ok := s.counters[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.counters, key)
		return nil
	}
	return e
}

// Increment adds one to key.
func (s *MemoryStore) Increment(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("incr", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &counterEntry{}
		s.counters[key] = e
	}
	e.value++
	return e.value, nil
}

// SetExpiry arms an expiry on key. Missing keys are ignored, like EXPIRE.
func (s *MemoryStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return unavailable("expire", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		e.expiresAt = s.now().Add(wholeSeconds(ttl))
	}
	return nil
}

// IncrementWithExpiry increments key and arms its expiry when it is new or
// has none.
func (s *MemoryStore) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("incr+expire", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &counterEntry{}
		s.counters[key] = e
	}
	e.value++
	if e.value == 1 || e.expiresAt.IsZero() {
		e.expiresAt = s.now().Add(wholeSeconds(ttl))
	}
	return e.value, nil
}

// Get returns the counter at key, 0 when absent.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("get", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		return e.value, nil
	}
	return 0, nil
}

// TTL returns the remaining lifetime of key, truncated to whole seconds.
func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("ttl", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	switch {
	case e == nil:
		return KeyMissing, nil
	case e.expiresAt.IsZero():
		return NoExpiry, nil
	default:
		return e.expiresAt.Sub(s.now()).Truncate(time.Second), nil
	}
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("del", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)
	return nil
}

// Ping always succeeds unless ctx is done.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Count returns the number of stored counters, including expired ones not
// yet collected.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

// Cleanup removes expired counters and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.counters {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}

// StartBackgroundCleanup starts a goroutine that periodically removes expired
// counters. Call the returned function to stop it.
func (s *MemoryStore) StartBackgroundCleanup(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
