package screencast

import (
	"sync"
	"time"
)

// EventType names a session lifecycle transition.
type EventType string

const (
	EventCreated         EventType = "created"
	EventSourcesSelected EventType = "sources-selected"
	EventStarted         EventType = "started"
	EventClosed          EventType = "closed"
)

// Event is published to subscribers on every lifecycle transition.
type Event struct {
	Type   EventType `json:"type"`
	Handle string    `json:"handle"`
	AppID  string    `json:"app_id,omitempty"`
	NodeID uint32    `json:"node_id,omitempty"`
	Time   time.Time `json:"time"`
}

type eventHub struct {
	mu        sync.RWMutex
	listeners []chan Event
}

func (h *eventHub) subscribe() chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, 16)
	h.listeners = append(h.listeners, ch)
	return ch
}

func (h *eventHub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// notify never blocks; slow listeners miss events.
func (h *eventHub) notify(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}
