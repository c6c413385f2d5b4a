package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "solara/internal/log"
	"solara/internal/metrics"
)

// Message types pushed to clients.
const (
	MsgGrid    = "grid"
	MsgClock   = "clock"
	MsgWeather = "weather"
	MsgEvents  = "events"
)

// Message is one pushed update.
type Message struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

const defaultBuffer = 32

// Hub fans messages out to subscribers. A subscriber that cannot keep up
// loses messages instead of stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]chan Message
	buffer int
	closed bool
	now    func() time.Time
}

// NewHub returns a hub whose subscriber channels hold buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[string]chan Message), buffer: buffer, now: time.Now}
}

// Subscribe returns a channel of future messages and the func that removes
// it. The channel is closed on cancel or when the hub closes.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	id := uuid.NewString()
	ch := make(chan Message, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch
	n := len(h.subs)
	h.mu.Unlock()
	metrics.StreamClients.Inc()
	appLog.Debug("hub: subscriber added", "id", id, "subscribers", n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			c, ok := h.subs[id]
			delete(h.subs, id)
			h.mu.Unlock()
			if ok {
				close(c)
				metrics.StreamClients.Dec()
			}
		})
	}
}

// Publish delivers a message to every subscriber without blocking.
func (h *Hub) Publish(typ string, data any) {
	msg := Message{Type: typ, Data: data, At: h.now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			appLog.Warn("hub: subscriber too slow, dropping message", "id", id, "type", typ)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
		metrics.StreamClients.Dec()
	}
}
