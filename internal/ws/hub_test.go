package ws

import (
	"sync"
	"testing"
)

func TestHubBroadcastDelivers(t *testing.T) {
	h := NewHub()
	sub := &Subscriber{UserID: 1, Send: make(chan []byte, 4)}
	h.Register(sub)
	defer sub.Close()

	h.BroadcastAll(map[string]string{"type": "order.payment"})
	select {
	case msg := <-sub.Send:
		if len(msg) == 0 {
			t.Error("empty broadcast payload")
		}
	default:
		t.Fatal("broadcast not delivered")
	}
}

func TestHubCloseRemovesSubscriber(t *testing.T) {
	h := NewHub()
	sub := &Subscriber{UserID: 1, Send: make(chan []byte, 1)}
	h.Register(sub)
	if h.SubscriberCount() != 1 {
		t.Fatalf("count = %d, want 1", h.SubscriberCount())
	}
	sub.Close()
	sub.Close() // idempotent
	if h.SubscriberCount() != 0 {
		t.Fatalf("count after close = %d, want 0", h.SubscriberCount())
	}
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	sub := &Subscriber{UserID: 1, Send: make(chan []byte, 1)}
	h.Register(sub)
	defer sub.Close()

	// Second broadcast hits a full buffer and must return immediately.
	h.BroadcastAll("a")
	h.BroadcastAll("b")
	if got := len(sub.Send); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
}

// Broadcasting while subscribers disconnect must never panic with a send on
// a closed channel.
func TestHubBroadcastDuringClose(t *testing.T) {
	h := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		sub := &Subscriber{UserID: uint(i), Send: make(chan []byte, 1)}
		h.Register(sub)
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.BroadcastAll("evt")
		}()
		go func(s *Subscriber) {
			defer wg.Done()
			s.Close()
		}(sub)
	}
	wg.Wait()
	if h.SubscriberCount() != 0 {
		t.Errorf("count = %d, want 0", h.SubscriberCount())
	}
}
