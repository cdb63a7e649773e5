package stats

import (
	"context"
	"sync"
)

// Counters maps an outcome to the number of events that produced it.
type Counters map[Outcome]int64

// MemoryRecorder keeps running totals in process memory. Totals never expire.
type MemoryRecorder struct {
	mu      sync.Mutex
	total   Counters
	byClass map[string]Counters
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		total:   make(Counters),
		byClass: make(map[string]Counters),
	}
}

func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total[ev.Outcome]++
	c, ok := m.byClass[ev.RuleClass]
	if !ok {
		c = make(Counters)
		m.byClass[ev.RuleClass] = c
	}
	c[ev.Outcome]++
	return nil
}

// Total returns a copy of the totals across all rule classes.
func (m *MemoryRecorder) Total() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCounters(m.total)
}

// ByClass returns a copy of the totals per rule class.
func (m *MemoryRecorder) ByClass() map[string]Counters {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Counters, len(m.byClass))
	for k, v := range m.byClass {
		out[k] = copyCounters(v)
	}
	return out
}

func copyCounters(c Counters) Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
