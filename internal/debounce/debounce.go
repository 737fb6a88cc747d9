// Package debounce provides a trailing-edge call coalescer: a burst of
// Schedule calls collapses into a single invocation of the most recent
// function once the input stream has been quiet for the full delay.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer coalesces repeated Schedule calls. It is a pure timing utility
// and holds no domain knowledge. Safe for concurrent use.
type Debouncer struct {
	clock clockwork.Clock

	mu    sync.Mutex
	timer clockwork.Timer
	gen   uint64
}

func New(clock clockwork.Clock) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{clock: clock}
}

// Schedule arranges for fn to run after delay. A Schedule call within the
// delay of a previous one cancels the pending invocation and reschedules
// from now, so only the function of the latest call fires.
func (d *Debouncer) Schedule(fn func(), delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(delay, func() {
		// The generation check closes the race between a firing timer and a
		// concurrent Schedule/Cancel that already superseded it.
		d.mu.Lock()
		current := d.gen == gen
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel discards any pending invocation. Nothing fires after Cancel unless
// Schedule is called again.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
