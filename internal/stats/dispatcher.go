package stats

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBufferSize = 1024
	recordTimeout     = 2 * time.Second
)

// Dispatcher fans events out to recorders on a background goroutine. Events
// arriving while the buffer is full are dropped and counted. A nil
// Dispatcher accepts and discards events.
type Dispatcher struct {
	recorders []Recorder
	events    chan Event
	dropped   atomic.Int64
	errLog    rate.Sometimes

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts a dispatcher. A bufferSize of zero or less uses the
// default of 1024.
func NewDispatcher(bufferSize int, recorders ...Recorder) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	d := &Dispatcher{
		recorders: recorders,
		events:    make(chan Event, bufferSize),
		errLog:    rate.Sometimes{Interval: 30 * time.Second},
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Record enqueues ev without blocking.
func (d *Dispatcher) Record(ev Event) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (d *Dispatcher) Dropped() int64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops accepting events, delivers what is buffered and waits for the
// worker to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for ev := range d.events {
		for _, r := range d.recorders {
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			err := r.Record(ctx, ev)
			cancel()
			if err != nil {
				d.errLog.Do(func() {
					slog.Warn("Failed to record gatekeeper decision", "error", err)
				})
			}
		}
	}
}
