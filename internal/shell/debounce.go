package shell

import (
	"sync"
	"time"
)

// debouncer runs fn once the triggers stop for wait. Each Trigger restarts
// the window, so only the last of a burst fires.
type debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	fn      func()
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func newDebouncer(wait time.Duration, fn func()) *debouncer {
	return &debouncer{wait: wait, fn: fn}
}

// Trigger (re)arms the timer.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		fire := !d.stopped && d.gen == gen
		d.mu.Unlock()
		if fire {
			d.fn()
		}
	})
}

// Stop cancels a pending run. Later triggers are ignored.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
