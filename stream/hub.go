package stream

import (
	"sync"

	"github.com/google/uuid"
)

const (
	eventBuffer   = 32
	historyLength = 50
)

// Subscriber is one UI client: a latest-frame slot plus a bounded event queue.
type Subscriber struct {
	ID     string
	Frames *Slot
	Events chan Event

	droppedEvents uint64
}

// Hub fans frames and events out to subscribers. It implements Sink.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscriber
	latest  *Rendered
	history []Event

	framesRendered uint64
	eventsDropped  uint64
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string]*Subscriber),
		history: make([]Event, 0, historyLength),
	}
}

// Subscribe registers a client. The latest frame and recent messages are queued immediately.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Frames: NewSlot(),
		Events: make(chan Event, eventBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[sub.ID] = sub
	start := 0
	if len(h.history) > eventBuffer {
		start = len(h.history) - eventBuffer
	}
	for _, e := range h.history[start:] {
		sub.Events <- e
	}
	if h.latest != nil {
		sub.Frames.Publish(h.latest)
	}

	return sub
}

// Unsubscribe removes the client and wakes its frame reader.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	delete(h.subs, sub.ID)
	sub.Frames.Close()
}

func (h *Hub) Render(r *Rendered) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = r
	h.framesRendered++
	for _, sub := range h.subs {
		sub.Frames.Publish(r)
	}
}

func (h *Hub) Report(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Type == EventState && e.State == Stopped {
		h.latest = nil
	}

	if len(h.history) == historyLength {
		copy(h.history, h.history[1:])
		h.history = h.history[:historyLength-1]
	}
	h.history = append(h.history, e)

	for _, sub := range h.subs {
		h.deliver(sub, e)
	}
}

// deliver queues e, discarding the oldest queued event when the client is behind.
func (h *Hub) deliver(sub *Subscriber, e Event) {
	for {
		select {
		case sub.Events <- e:
			return
		default:
		}

		select {
		case <-sub.Events:
			sub.droppedEvents++
			h.eventsDropped++
		default:
		}
	}
}

// History returns the recent events, oldest first.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Event(nil), h.history...)
}

type HubMetrics struct {
	Clients        int    `json:"clients"`
	FramesRendered uint64 `json:"frames_rendered"`
	FramesDropped  uint64 `json:"frames_dropped"`
	EventsDropped  uint64 `json:"events_dropped"`
}

func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := HubMetrics{
		Clients:        len(h.subs),
		FramesRendered: h.framesRendered,
		EventsDropped:  h.eventsDropped,
	}
	for _, sub := range h.subs {
		m.FramesDropped += sub.Frames.Drops()
	}
	return m
}
