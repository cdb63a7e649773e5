package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// counterEntry counts requests accepted since resetAt minus the window.
type counterEntry struct {
	count   int
	resetAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
}

// MemoryStore is an in-memory fixed-window counter store. Keys are spread
// over independently locked shards, so a check only contends with keys in
// the same shard and the sweep never holds more than one shard lock.
//
// Windows are fixed, not sliding: a caller can land MaxRequests at the end
// of one window and MaxRequests more at the start of the next.
type MemoryStore struct {
	shards        [shardCount]*shard
	sweepInterval time.Duration
	now           func() time.Time

	mu     sync.Mutex
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates a counter store and starts its sweep goroutine,
// which deletes expired counters every sweepInterval.
func NewMemoryStore(sweepInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sweepInterval: sweepInterval,
		now:           time.Now,
		done:          make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*counterEntry)}
	}
	for _, opt := range opts {
		opt(m)
	}

	if sweepInterval > 0 {
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

func (m *MemoryStore) shardFor(key string) *shard {
	return m.shards[xxhash.Sum64String(key)%shardCount]
}

// CheckAndIncrement implements Store. The read that decides allow/deny and
// the update happen under the same shard lock.
func (m *MemoryStore) CheckAndIncrement(_ context.Context, key string, rule Rule) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}
	if !rule.Valid() {
		return Decision{}, ErrInvalidRule
	}

	now := m.now()
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || now.After(e.resetAt) {
		e = &counterEntry{count: 1, resetAt: now.Add(rule.Window)}
		s.entries[key] = e
		return Decision{Allowed: true, Count: 1, ResetAt: e.resetAt}, nil
	}

	if e.count < rule.MaxRequests {
		e.count++
		return Decision{Allowed: true, Count: e.count, ResetAt: e.resetAt}, nil
	}

	return Decision{
		Allowed:    false,
		Count:      e.count,
		ResetAt:    e.resetAt,
		RetryAfter: e.resetAt.Sub(now),
	}, nil
}

// Len implements Store.
func (m *MemoryStore) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (m *MemoryStore) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *MemoryStore) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep deletes counters whose window has ended and returns how many were removed.
func (m *MemoryStore) sweep() int {
	now := m.now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if e.resetAt.Before(now) {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
