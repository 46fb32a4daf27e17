package lamportclock

import "math"

// DefaultStep is the amount a clock moves on every local event.
const DefaultStep uint64 = 1

// Clock is a scalar Lamport clock. It is not safe for concurrent use; the
// owner serializes access (the server engine holds it under its own lock).
type Clock struct {
	step uint64
	time uint64
}

// New returns a clock starting at zero. A zero step falls back to DefaultStep.
func New(step uint64) *Clock {
	if step == 0 {
		step = DefaultStep
	}
	return &Clock{step: step}
}

// Advance moves the clock forward by one step and returns the new value.
// Every outgoing message is stamped with the value returned here. The
// clock saturates at math.MaxUint64 instead of wrapping.
func (c *Clock) Advance() uint64 {
	c.time = c.add(c.time)
	return c.time
}

// Observe merges a remote timestamp: time = max(time, remote+step).
func (c *Clock) Observe(remote uint64) uint64 {
	if next := c.add(remote); next > c.time {
		c.time = next
	}
	return c.time
}

func (c *Clock) add(t uint64) uint64 {
	if t > math.MaxUint64-c.step {
		return math.MaxUint64
	}
	return t + c.step
}

// Time returns the current value without moving the clock.
func (c *Clock) Time() uint64 {
	return c.time
}

// Less reports whether (t1, name1) orders before (t2, name2): the smaller
// timestamp wins and equal timestamps fall back to the lexicographically
// smaller name.
func Less(t1 uint64, name1 string, t2 uint64, name2 string) bool {
	if t1 != t2 {
		return t1 < t2
	}
	return name1 < name2
}
