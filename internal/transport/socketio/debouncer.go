package socketio

import (
	"sync"
	"time"
)

// Change is a set of client-visible aggregates that need re-pushing.
type Change uint8

const (
	ChangeState Change = 1 << iota
	ChangeQueue
	ChangeHistory
)

// Has reports whether c includes other.
func (c Change) Has(other Change) bool {
	return c&other != 0
}

// BroadcastDebouncer collapses bursts of session changes into one push per
// aggregate. Changes triggered within the window are merged and delivered
// together once the window elapses without further triggers.
type BroadcastDebouncer struct {
	window time.Duration
	flushF func(Change)

	mu      sync.Mutex
	pending Change
	timer   *time.Timer
	stopped bool
}

// NewBroadcastDebouncer creates a debouncer calling flush with the merged
// changes.
func NewBroadcastDebouncer(window time.Duration, flush func(Change)) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window: window,
		flushF: flush,
	}
}

// Trigger records c and restarts the window.
func (d *BroadcastDebouncer) Trigger(c Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || c == 0 {
		return
	}
	d.pending |= c

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	c := d.pending
	d.pending = 0
	stopped := d.stopped
	d.mu.Unlock()

	if c != 0 && !stopped && d.flushF != nil {
		d.flushF(c)
	}
}

// Stop prevents any further callbacks from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = 0
}
