package realtime

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBuffer = 64

// Ensure Hub implements Channel and Publisher
var (
	_ Channel   = (*Hub)(nil)
	_ Publisher = (*Hub)(nil)
)

// Hub is an in-process Channel and Publisher.
// A subscriber whose buffer is full misses the event; the next authoritative
// refetch makes up for it.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*hubSubscription]struct{}
	buffer int
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[*hubSubscription]struct{}),
		buffer: defaultBuffer,
	}
}

// Subscribe registers a subscriber for billID.
// The subscription ends when ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, billID string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	sub := &hubSubscription{
		hub:    h,
		billID: billID,
		events: make(chan Event, h.buffer),
		done:   make(chan struct{}),
	}
	if h.subs[billID] == nil {
		h.subs[billID] = make(map[*hubSubscription]struct{})
	}
	h.subs[billID][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish delivers event to every current subscriber of its bill.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	for sub := range h.subs[event.BillID] {
		select {
		case sub.events <- event:
		default:
			slog.Warn("Dropping claim event for slow subscriber", "bill_id", event.BillID, "type", event.Type)
		}
	}
	return nil
}

// Close ends every subscription and rejects further use.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var all []*hubSubscription
	for _, subs := range h.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	return nil
}

func (h *Hub) remove(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[sub.billID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.billID)
	}
	close(sub.events)
}

type hubSubscription struct {
	hub    *Hub
	billID string
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *hubSubscription) Events() <-chan Event {
	return s.events
}

func (s *hubSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
	return nil
}
