package scan

import (
	"sync"
	"time"
)

// Debouncer delays a function until a quiet period elapses with no new
// scheduling. It is an explicit cancellable timer: Schedule replaces any
// pending run, Cancel stops it, and a scheduled function fires at most once.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Schedule arms the timer to run fn after delay, replacing any run that was
// still pending.
func (d *Debouncer) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel stops a pending run. It reports whether a run was actually pending;
// cancelling an idle debouncer is a no-op.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}
