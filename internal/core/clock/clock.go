// Package clock provides the microsecond time source threaded through the
// schedulers. There is no process-wide timestamp; every loop owns its Clock.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock reports monotonically increasing microseconds since an arbitrary origin.
type Clock interface {
	Micros() uint64
}

// SystemClock measures wall time from the moment it was constructed.
type SystemClock struct {
	origin time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

func (c *SystemClock) Micros() uint64 {
	return uint64(time.Since(c.origin).Microseconds())
}

// ManualClock only moves when told to. Safe for use from several goroutines.
type ManualClock struct {
	now atomic.Uint64
}

func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Micros() uint64 { return c.now.Load() }

// Advance moves the clock forward by d (truncated to microseconds).
func (c *ManualClock) Advance(d time.Duration) {
	c.now.Add(uint64(d.Microseconds()))
}

// Set jumps to an absolute reading. Going backwards is ignored.
func (c *ManualClock) Set(us uint64) {
	for {
		cur := c.now.Load()
		if us <= cur || c.now.CompareAndSwap(cur, us) {
			return
		}
	}
}
