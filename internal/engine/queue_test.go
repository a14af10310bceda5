package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ir"
)

func queuedEvent(key string) ir.LedgerEvent {
	return ir.LedgerEvent{
		Key:        key,
		Kind:       ir.KindMilestoneSettled,
		Settlement: &ir.MilestoneSettlement{Source: projectP, Index: 0},
	}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, key := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(queuedEvent(key)))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.Key)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_CloseKeepsQueuedEvents(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(queuedEvent("a"))
	q.Close()

	assert.False(t, q.Enqueue(queuedEvent("b")), "enqueue after close should return false")
	assert.False(t, q.Drained())

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "a", got.Key)
	assert.True(t, q.Drained())
}

func TestEventQueue_WaitUnblocksOnClose(t *testing.T) {
	q := newEventQueue()

	done := make(chan struct{})
	go func() {
		<-q.Wait()
		close(done)
	}()

	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after close")
	}
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue()

	const producers = 10
	const eventsPerProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < eventsPerProducer; i++ {
				q.Enqueue(queuedEvent(fmt.Sprintf("%d-%d", producerID, i)))
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, producers*eventsPerProducer, q.Len())

	seen := make(map[string]bool)
	for {
		ev, ok := q.TryDequeue()
		if !ok {
			break
		}
		assert.False(t, seen[ev.Key], "event %s delivered twice", ev.Key)
		seen[ev.Key] = true
	}
	assert.Len(t, seen, producers*eventsPerProducer)
}
