package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type blockingRecorder struct {
	release chan struct{}
}

func (b *blockingRecorder) Record(ctx context.Context, ev Event) error {
	<-b.release
	return nil
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, Event) error {
	return errors.New("sink down")
}

func TestDispatcher_DeliversToAllRecorders(t *testing.T) {
	a, b := NewMemoryRecorder(), NewMemoryRecorder()
	d := NewDispatcher(16, a, failingRecorder{}, b)

	for i := 0; i < 10; i++ {
		d.Record(Event{RuleClass: "api", Outcome: OutcomeAllowed, At: time.Now()})
	}
	d.Close()

	assert.Equal(t, int64(10), a.Total()[OutcomeAllowed])
	assert.Equal(t, int64(10), b.Total()[OutcomeAllowed])
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	blocker := &blockingRecorder{release: make(chan struct{})}
	d := NewDispatcher(1, blocker)

	// The worker holds at most one event while blocked and the buffer holds
	// one more, so at least 8 of these are dropped.
	for i := 0; i < 10; i++ {
		d.Record(Event{Outcome: OutcomeAllowed})
	}

	assert.GreaterOrEqual(t, d.Dropped(), int64(8))
	close(blocker.release)
	d.Close()
}

func TestDispatcher_RecordAfterClose(t *testing.T) {
	m := NewMemoryRecorder()
	d := NewDispatcher(4, m)
	d.Close()

	assert.NotPanics(t, func() { d.Record(Event{Outcome: OutcomeAllowed}) })
	assert.NotPanics(t, d.Close)
	assert.Empty(t, m.Total())
}

func TestDispatcher_Nil(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Record(Event{})
		d.Close()
	})
	assert.Zero(t, d.Dropped())
}
