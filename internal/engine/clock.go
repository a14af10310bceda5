package engine

import (
	"fmt"
	"sync/atomic"
)

// Clock hands out event log sequence numbers.
//
// A number is reserved with Pending and consumed with Commit once the event
// carrying it has been written. An event that fails to apply never commits,
// so the log has no gaps and seq equals the event's position in the log.
//
// Ordering uses seq only, never wall-clock time.
//
// Thread-safety: reads are atomic so status readers may call Current from
// any goroutine. Pending/Commit pairs must come from the single writer.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock for an empty log.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose last committed seq is start.
// The engine seeds this from store.LastSeq on startup.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Pending returns the seq the next committed event will carry.
func (c *Clock) Pending() int64 {
	return c.seq.Load() + 1
}

// Commit records seq as consumed. seq must be the value Pending returned.
func (c *Clock) Commit(seq int64) error {
	if !c.seq.CompareAndSwap(seq-1, seq) {
		return fmt.Errorf("clock: commit of seq %d out of order (current %d)", seq, c.seq.Load())
	}
	return nil
}

// Current returns the last committed seq, 0 for an empty log.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
