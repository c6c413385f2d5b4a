package grid

import (
	"math"
	"time"

	"github.com/google/uuid"

	appLog "solara/internal/log"
)

// DragState is the state of the single drag state machine:
// Idle → Armed → Dragging → Idle.
type DragState int

const (
	StateIdle DragState = iota
	StateArmed
	StateDragging
)

func (s DragState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateDragging:
		return "dragging"
	default:
		return "idle"
	}
}

// Outcome is how a gesture ended.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeClick     Outcome = "click"
	OutcomeCommitted Outcome = "committed"
	OutcomeCancelled Outcome = "cancelled"
)

// Session is the transient state of one pointer gesture.
type Session struct {
	ID     string
	CardID string
	State  DragState

	// Start and Last are pointer positions.
	Start Point
	Last  Point
	// grab is the pointer offset from the card origin at pointer-down.
	grab Point

	StartIndex    int
	OriginalOrder []string
	Placeholder   *Placeholder

	lastSortPoint Point
	lastSortAt    time.Time
	// blockedIndex is the slot the card just left; moving straight back
	// into it needs a direction change of at least MinBounceBackAngle.
	blockedIndex int
	swapAngle    float64
}

func newSessionID() string {
	return uuid.NewString()
}

// PointerDown arms the card whose drag handle contains p and emits
// DragArm. The card is armed before any movement so embedded content cannot
// take over the gesture. It reports whether a card was armed.
func (e *Engine) PointerDown(p Point) bool {
	e.mu.Lock()
	if !e.ready || e.session != nil {
		e.mu.Unlock()
		return false
	}
	for i, c := range e.cards {
		if !c.inHandle(p) {
			continue
		}
		c.Arming = true
		e.session = &Session{
			ID:            e.opts.NewSessionID(),
			CardID:        c.ID,
			State:         StateArmed,
			Start:         p,
			Last:          p,
			grab:          Point{X: p.X - c.X, Y: p.Y - c.Y},
			StartIndex:    i,
			OriginalOrder: e.orderLocked(),
			blockedIndex:  -1,
		}
		appLog.Debug("grid: card armed", "card", c.ID, "session", e.session.ID)
		ev := e.eventLocked(EventDragArm, c.ID)
		e.mu.Unlock()
		e.dispatch([]Event{ev})
		return true
	}
	e.mu.Unlock()
	return false
}

// PointerMove promotes an armed card to a drag once the pointer has moved
// past DragStartDistance. While dragging it moves the card with the
// pointer, emits DragMove and runs the sort heuristic.
func (e *Engine) PointerMove(p Point) {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return
	}
	s.Last = p
	c := e.findLocked(s.CardID)

	var events []Event
	switch s.State {
	case StateArmed:
		if distance(p, s.Start) <= float64(e.opts.DragStartDistance) {
			e.mu.Unlock()
			return
		}
		c.Arming = false
		c.Dragging = true
		s.State = StateDragging
		s.Placeholder = &Placeholder{
			CardID: c.ID,
			X:      c.X,
			Y:      c.Y,
			Width:  c.Width,
			Height: c.Height(),
			Margin: c.Margin,
		}
		s.lastSortPoint = s.Start
		c.X, c.Y = p.X-s.grab.X, p.Y-s.grab.Y
		events = append(events, e.eventLocked(EventDragStart, c.ID))
		appLog.Debug("grid: drag started", "card", c.ID, "session", s.ID)
		if e.sortLocked(p) {
			e.relayoutLocked()
			events = append(events, e.eventLocked(EventLayoutEnd, ""))
		}
	case StateDragging:
		c.X, c.Y = p.X-s.grab.X, p.Y-s.grab.Y
		events = append(events, e.eventLocked(EventDragMove, c.ID))
		if e.sortLocked(p) {
			e.relayoutLocked()
			events = append(events, e.eventLocked(EventLayoutEnd, ""))
		}
	}
	e.mu.Unlock()
	e.dispatch(events)
}

// PointerUp ends the gesture. An armed card that never moved is a click;
// a dragged card commits the new order and emits DragEnd.
func (e *Engine) PointerUp(p Point) Outcome {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return OutcomeNone
	}
	s.Last = p
	c := e.findLocked(s.CardID)
	c.Arming = false

	if s.State != StateDragging {
		e.session = nil
		e.mu.Unlock()
		return OutcomeClick
	}

	c.Dragging = false
	e.session = nil
	e.relayoutLocked()
	end := e.eventLocked(EventDragEnd, c.ID)
	end.SessionID = s.ID
	layout := e.eventLocked(EventLayoutEnd, "")
	e.mu.Unlock()

	appLog.Debug("grid: drag committed", "card", c.ID, "session", s.ID, "from", s.StartIndex, "order", end.Order)
	e.dispatch([]Event{end, layout})
	return OutcomeCommitted
}

// CancelDrag aborts the gesture and restores the order captured at
// pointer-down. Nothing is persisted.
func (e *Engine) CancelDrag() Outcome {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return OutcomeNone
	}
	c := e.findLocked(s.CardID)
	c.Arming = false
	c.Dragging = false
	e.session = nil

	if s.State != StateDragging {
		e.mu.Unlock()
		return OutcomeCancelled
	}

	e.cards = reorder(e.cards, s.OriginalOrder)
	e.relayoutLocked()
	cancel := e.eventLocked(EventDragCancel, c.ID)
	cancel.SessionID = s.ID
	layout := e.eventLocked(EventLayoutEnd, "")
	e.mu.Unlock()

	appLog.Debug("grid: drag cancelled", "card", c.ID, "session", s.ID)
	e.dispatch([]Event{cancel, layout})
	return OutcomeCancelled
}

// sortLocked evaluates one sort step and reports whether the order changed.
// Evaluation is rate limited by SortInterval and needs MinDragDistance of
// pointer travel since the previous evaluation.
func (e *Engine) sortLocked(p Point) bool {
	s := e.session
	now := e.opts.Now()
	if !s.lastSortAt.IsZero() && now.Sub(s.lastSortAt) < e.opts.SortInterval {
		return false
	}
	if distance(p, s.lastSortPoint) < float64(e.opts.MinDragDistance) {
		return false
	}
	angle := math.Atan2(float64(p.Y-s.lastSortPoint.Y), float64(p.X-s.lastSortPoint.X))
	s.lastSortAt = now
	s.lastSortPoint = p

	from := e.indexLocked(s.CardID)
	to := e.hitLocked(p, s.CardID)
	if to < 0 || to == from {
		return false
	}
	if to == s.blockedIndex && angleBetween(angle, s.swapAngle) < e.opts.MinBounceBackAngle {
		return false
	}

	c := e.cards[from]
	rest := append(e.cards[:from:from], e.cards[from+1:]...)
	moved := make([]*Card, 0, len(e.cards))
	moved = append(moved, rest[:to]...)
	moved = append(moved, c)
	moved = append(moved, rest[to:]...)
	e.cards = moved

	s.blockedIndex = from
	s.swapAngle = angle
	return true
}

// hitLocked returns the index of the card under p, skipping the card with
// id skip, or -1.
func (e *Engine) hitLocked(p Point, skip string) int {
	for i, c := range e.cards {
		if c.ID == skip {
			continue
		}
		if c.box().contains(p) {
			return i
		}
	}
	return -1
}

func distance(a, b Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// angleBetween returns the absolute difference of two directions in [0, π].
func angleBetween(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}
