package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var testRule = Rule{MaxRequests: 3, Window: time.Minute, ErrorMessage: "slow down"}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	assert.NotNil(t, store)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_FirstRequestCreatesEntry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	defer store.Close()

	d, err := store.CheckAndIncrement(context.Background(), "auth:1.2.3.4:/auth/login", testRule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ExceedsLimit(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	defer store.Close()

	ctx := context.Background()
	for i := 1; i <= testRule.MaxRequests; i++ {
		d, err := store.CheckAndIncrement(ctx, "key", testRule)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, i, d.Count)
	}

	clock.Advance(20 * time.Second)
	d, err := store.CheckAndIncrement(ctx, "key", testRule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, testRule.MaxRequests, d.Count, "denied requests are not counted")
	assert.Equal(t, 40*time.Second, d.RetryAfter)
}

func TestMemoryStore_WindowReset(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < testRule.MaxRequests; i++ {
		_, err := store.CheckAndIncrement(ctx, "key", testRule)
		require.NoError(t, err)
	}

	// At exactly resetAt the window is still open.
	clock.Advance(testRule.Window)
	d, err := store.CheckAndIncrement(ctx, "key", testRule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.Advance(time.Millisecond)
	d, err = store.CheckAndIncrement(ctx, "key", testRule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count, "a fresh window starts counting at 1")
	assert.Equal(t, clock.Now().Add(testRule.Window), d.ResetAt)
}

func TestMemoryStore_BoundaryBurst(t *testing.T) {
	// Fixed windows admit up to 2x the limit across a boundary.
	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	defer store.Close()

	ctx := context.Background()
	_, err := store.CheckAndIncrement(ctx, "key", testRule)
	require.NoError(t, err)

	clock.Advance(testRule.Window - time.Second)
	for i := 0; i < testRule.MaxRequests-1; i++ {
		d, err := store.CheckAndIncrement(ctx, "key", testRule)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	clock.Advance(2 * time.Second)
	allowed := 0
	for i := 0; i < testRule.MaxRequests+1; i++ {
		d, err := store.CheckAndIncrement(ctx, "key", testRule)
		require.NoError(t, err)
		if d.Allowed {
			allowed++
		}
	}
	assert.Equal(t, testRule.MaxRequests, allowed)
}

func TestMemoryStore_DifferentKeys(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < testRule.MaxRequests; i++ {
		store.CheckAndIncrement(ctx, "key1", testRule)
	}
	d1, err := store.CheckAndIncrement(ctx, "key1", testRule)
	require.NoError(t, err)
	assert.False(t, d1.Allowed, "key1 should be denied")

	d2, err := store.CheckAndIncrement(ctx, "key2", testRule)
	require.NoError(t, err)
	assert.True(t, d2.Allowed, "key2 should be allowed")
	assert.Equal(t, 1, d2.Count)
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	_, err := store.CheckAndIncrement(context.Background(), "", testRule)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = store.CheckAndIncrement(context.Background(), "key", Rule{MaxRequests: 0, Window: time.Minute})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = store.CheckAndIncrement(context.Background(), "key", Rule{MaxRequests: 1})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestMemoryStore_ConcurrentSameKey(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	rule := Rule{MaxRequests: 10, Window: time.Hour}
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := store.CheckAndIncrement(context.Background(), "shared", rule)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load(), "exactly MaxRequests concurrent requests may pass")
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	defer store.Close()

	rule := Rule{MaxRequests: 1000, Window: 5 * time.Millisecond}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("client-%d", id%5)
			for j := 0; j < 20; j++ {
				store.CheckAndIncrement(context.Background(), key, rule)
				store.Len()
			}
		}(i)
	}
	wg.Wait()
	// No panics or data races -- run with -race flag
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	defer store.Close()

	ctx := context.Background()
	store.CheckAndIncrement(ctx, "old", testRule)
	clock.Advance(30 * time.Second)
	store.CheckAndIncrement(ctx, "young", testRule)
	require.Equal(t, 2, store.Len())

	clock.Advance(45 * time.Second)
	removed := store.sweep()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	s := store.shardFor("young")
	s.mu.Lock()
	_, exists := s.entries["young"]
	s.mu.Unlock()
	assert.True(t, exists, "entries inside their window survive the sweep")
}

func TestMemoryStore_BackgroundSweep(t *testing.T) {
	store := NewMemoryStore(20 * time.Millisecond)
	defer store.Close()

	rule := Rule{MaxRequests: 5, Window: 10 * time.Millisecond}
	_, err := store.CheckAndIncrement(context.Background(), "ephemeral-key", rule)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len(), "key should exist before cleanup")

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 10*time.Millisecond, "key should be swept after its window")
}

func TestMemoryStore_Close(t *testing.T) {
	store := NewMemoryStore(100 * time.Millisecond)
	store.Close()
	// Should not panic on double close
	store.Close()

	// Counting still works without the sweep goroutine.
	d, err := store.CheckAndIncrement(context.Background(), "key", testRule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
