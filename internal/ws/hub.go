package ws

import (
	"encoding/json"
	"sync"
)

// Subscriber is one connected events-feed client.
type Subscriber struct {
	UserID uint
	Send   chan []byte

	hub    *Hub
	mu     sync.Mutex
	closed bool
}

func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.Send)
	if s.hub != nil {
		s.hub.unregister(s)
	}
}

// trySend delivers without blocking; drops when the buffer is full or the
// subscriber is already closed. The mu guard keeps the send and Close's
// close(s.Send) from racing.
func (s *Subscriber) trySend(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.Send <- data:
	default:
	}
}

// Hub fans reconciliation events out to subscribed admin dashboards. Slow
// subscribers drop messages rather than block the reconciler.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

func (h *Hub) Register(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s.hub = h
	h.subs[s] = struct{}{}
}

func (h *Hub) unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (h *Hub) BroadcastAll(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		s.trySend(data)
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
