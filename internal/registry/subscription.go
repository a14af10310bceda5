package registry

import (
	"sync"
	"time"

	"github.com/roach88/tally/internal/ir"
)

// DefaultSubscriptionBuffer is the per-subscriber channel capacity.
const DefaultSubscriptionBuffer = 64

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

// DocumentUpdated is delivered to subscribers after a document is committed.
type DocumentUpdated struct {
	Address   ir.Address `json:"address"`
	URI       string     `json:"uri"`
	Revision  uint64     `json:"revision"`
	Created   bool       `json:"created"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Document returns the entry as stored by the update.
func (u DocumentUpdated) Document() Document {
	return Document{Address: u.Address, URI: u.URI, Revision: u.Revision, UpdatedAt: u.UpdatedAt}
}

type subscriber struct {
	ch     chan DocumentUpdated
	mu     sync.RWMutex
	closed bool
}

// deliver sends without blocking. Returns false if the update was dropped.
func (s *subscriber) deliver(u DocumentUpdated) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- u:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Subscribe registers for DocumentUpdated notifications.
// The channel is closed by Unsubscribe or Close.
func (r *Registry) Subscribe() (SubscriptionID, <-chan DocumentUpdated) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	sub := &subscriber{ch: make(chan DocumentUpdated, r.subBuffer)}
	r.lastSubID++
	id := r.lastSubID
	if r.closed.Load() {
		sub.close()
		return id, sub.ch
	}
	r.subscribers[id] = sub
	return id, sub.ch
}

// Unsubscribe stops delivery to id and closes its channel.
// Unknown ids are ignored.
func (r *Registry) Unsubscribe(id SubscriptionID) {
	r.subMu.Lock()
	sub, ok := r.subscribers[id]
	delete(r.subscribers, id)
	r.subMu.Unlock()

	if ok {
		sub.close()
	}
}

func (r *Registry) publish(u DocumentUpdated) {
	r.subMu.RLock()
	subs := make(map[SubscriptionID]*subscriber, len(r.subscribers))
	for id, sub := range r.subscribers {
		subs[id] = sub
	}
	r.subMu.RUnlock()

	for id, sub := range subs {
		if !sub.deliver(u) {
			r.logger.Warn("subscriber buffer full, dropping document update",
				"subscription", uint64(id),
				"address", u.Address,
				"revision", u.Revision)
		}
	}
}

func (r *Registry) closeSubscribers() {
	r.subMu.Lock()
	subs := r.subscribers
	r.subscribers = make(map[SubscriptionID]*subscriber)
	r.subMu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
