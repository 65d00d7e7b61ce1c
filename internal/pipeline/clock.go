package pipeline

import "sync/atomic"

// Sequencer stamps stages with increasing sequence numbers.
// Implemented by Clock.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock. Stage reports are ordered by its
// sequence numbers, never by wall time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Reset rewinds the clock to 0 so the next run restarts numbering at 1.
func (c *Clock) Reset() {
	c.seq.Store(0)
}
