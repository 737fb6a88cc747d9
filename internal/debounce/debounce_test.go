package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) fire(name string) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
	}
}

func (r *recorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDebouncer_FiresAfterQuietPeriod(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(clock)
	rec := &recorder{}

	d.Schedule(rec.fire("a"), 100*time.Millisecond)

	clock.Advance(99 * time.Millisecond)
	assert.Empty(t, rec.recorded())

	clock.Advance(1 * time.Millisecond)
	assert.Equal(t, []string{"a"}, rec.recorded())
}

func TestDebouncer_RapidCallsCoalesceToLast(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(clock)
	rec := &recorder{}

	d.Schedule(rec.fire("first"), 100*time.Millisecond)
	clock.Advance(50 * time.Millisecond)
	d.Schedule(rec.fire("second"), 100*time.Millisecond)
	clock.Advance(50 * time.Millisecond)
	d.Schedule(rec.fire("third"), 100*time.Millisecond)

	// The full window must elapse from the latest call.
	clock.Advance(99 * time.Millisecond)
	assert.Empty(t, rec.recorded())

	clock.Advance(1 * time.Millisecond)
	assert.Equal(t, []string{"third"}, rec.recorded())

	// Nothing else fires later.
	clock.Advance(time.Second)
	assert.Equal(t, []string{"third"}, rec.recorded())
}

func TestDebouncer_CancelDiscardsPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(clock)
	rec := &recorder{}

	d.Schedule(rec.fire("a"), 100*time.Millisecond)
	d.Cancel()

	clock.Advance(time.Second)
	assert.Empty(t, rec.recorded())
}

func TestDebouncer_ScheduleAfterCancelWorks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(clock)
	rec := &recorder{}

	d.Schedule(rec.fire("a"), 100*time.Millisecond)
	d.Cancel()
	d.Schedule(rec.fire("b"), 100*time.Millisecond)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"b"}, rec.recorded())
}

func TestDebouncer_CancelWithoutScheduleIsNoop(t *testing.T) {
	d := New(clockwork.NewFakeClock())
	d.Cancel()
}
