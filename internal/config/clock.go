package config

import "sync/atomic"

// Tick is the emulator's only unit of time: a monotonically
// non-decreasing counter advanced exclusively by the Scheduler Loop.
type Tick int64

// Clock is the shared handle the Scheduler Loop advances and every other
// component reads from. It is safe for concurrent use.
type Clock struct {
	tick atomic.Int64
}

// NewClock returns a Clock starting at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current tick without advancing it.
func (c *Clock) Now() Tick {
	return Tick(c.tick.Load())
}

// Advance increments the tick by exactly one and returns the new value.
// Only the Scheduler Loop should call this.
func (c *Clock) Advance() Tick {
	return Tick(c.tick.Add(1))
}
