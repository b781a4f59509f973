package server

import (
	"sync"
	"sync/atomic"
)

// Event is one audit entry as seen by live subscribers. Seq increases by one
// per recorded request, so a gap tells a subscriber it missed entries.
type Event struct {
	Seq   uint64   `json:"seq"`
	Type  string   `json:"type"`
	Entry LogEntry `json:"entry"`
}

type Subscriber struct {
	Send chan Event

	methods map[Method]bool // nil means every method
	dropped atomic.Uint64
}

// Dropped counts events discarded because Send was full.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscriber) wants(m Method) bool {
	return s.methods == nil || s.methods[m]
}

// EventHub fans recorded requests out to live subscribers, such as the
// admin websocket feed.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	seq         atomic.Uint64
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a subscriber for entries of the given methods, or of
// every method when none are given.
func (h *EventHub) Subscribe(methods ...Method) *Subscriber {
	s := &Subscriber{
		Send: make(chan Event, 16),
	}
	if len(methods) > 0 {
		s.methods = make(map[Method]bool, len(methods))
		for _, m := range methods {
			s.methods[m] = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[s] = struct{}{}
	return s
}

// Unsubscribe removes s and closes its Send channel. Calling it twice is a no-op.
func (h *EventHub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.Send)
}

func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Append delivers e to every interested subscriber without blocking; a
// subscriber whose buffer is full misses the entry and has it counted in
// Dropped.
func (h *EventHub) Append(e LogEntry) error {
	ev := Event{
		Seq:   h.seq.Add(1),
		Type:  e.Method.String(),
		Entry: e,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subscribers {
		if !s.wants(e.Method) {
			continue
		}
		select {
		case s.Send <- ev:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}
