package scan

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_FiresOnceAfterQuietPeriod(t *testing.T) {
	var d Debouncer
	var fired int32

	// A burst of schedules coalesces into one run after the last of them.
	for i := 0; i < 3; i++ {
		d.Schedule(30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestDebouncer_Cancel(t *testing.T) {
	var d Debouncer
	var fired int32

	d.Schedule(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	assert.True(t, d.Cancel())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	// Cancelling with nothing pending is a no-op.
	assert.False(t, d.Cancel())
}
