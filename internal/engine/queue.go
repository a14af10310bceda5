package engine

import (
	"sync"

	"github.com/roach88/tally/internal/ir"
)

// eventQueue is a thread-safe FIFO of ledger events awaiting application.
//
// Producers (ingest, HTTP handlers, chain followers) enqueue from any
// goroutine; only the Run loop dequeues. The queue is unbounded so a slow
// SQLite commit never blocks a producer.
//
// A buffered signal channel lets Run wait on the queue and ctx.Done() in the
// same select.
type eventQueue struct {
	mu     sync.Mutex
	events []ir.LedgerEvent
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]ir.LedgerEvent, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds ev to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(ev ir.LedgerEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, ev)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns false if the queue is empty.
func (q *eventQueue) TryDequeue() (ir.LedgerEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return ir.LedgerEvent{}, false
	}

	ev := q.events[0]
	// Clear the slot so payload pointers can be collected
	q.events[0] = ir.LedgerEvent{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return ev, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops further enqueues and wakes any waiter.
// Events already queued are still delivered.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
