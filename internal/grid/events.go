package grid

import "time"

// EventType names what happened on the grid.
type EventType string

const (
	// EventDragArm is emitted on pointer-down over a handle.
	EventDragArm    EventType = "drag_arm"
	EventDragStart  EventType = "drag_start"
	// EventDragMove is emitted for every pointer move while dragging.
	EventDragMove   EventType = "drag_move"
	EventDragEnd    EventType = "drag_end"
	EventDragCancel EventType = "drag_cancel"
	EventLayoutEnd  EventType = "layout_end"
)

// Event is delivered to subscribers after the engine state has settled.
type Event struct {
	Type EventType `json:"type"`
	// CardID is the dragged card for drag events.
	CardID string `json:"card_id,omitempty"`
	// SessionID identifies the drag session for drag events.
	SessionID string `json:"session_id,omitempty"`

	Order       []string     `json:"order"`
	Positions   []Position   `json:"positions"`
	Placeholder *Placeholder `json:"placeholder,omitempty"`
	Height      int          `json:"height"`

	// Duration and Easing describe the transition the page should animate.
	Duration time.Duration `json:"duration"`
	Easing   string        `json:"easing"`
}

// Handler receives engine events. Handlers run synchronously on the
// goroutine that caused the event and may call back into the engine.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Subscribe registers fn for every future event and returns a func that
// removes it. Subscribing before Initialize is allowed.
func (e *Engine) Subscribe(fn Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// dispatch delivers queued events. It must be called without e.mu held.
func (e *Engine) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	e.mu.Lock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, ev := range events {
		for _, s := range subs {
			s.fn(ev)
		}
	}
}
