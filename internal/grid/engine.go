// Package grid keeps the spatial arrangement of dashboard cards and mediates
// drag gestures over them.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	appLog "solara/internal/log"
)

var (
	// ErrNotReady is returned by calls that need an initialized engine.
	ErrNotReady = errors.New("grid: engine not initialized")
	// ErrAlreadyInitialized guards against a second Initialize.
	ErrAlreadyInitialized = errors.New("grid: engine already initialized")
	// ErrUnknownCard is returned for ids that match no card.
	ErrUnknownCard = errors.New("grid: unknown card")
	// ErrDragActive is returned when an operation cannot run mid-gesture.
	ErrDragActive = errors.New("grid: drag in progress")
)

// Options configures layout and drag behavior.
type Options struct {
	ContainerWidth int

	// SortInterval is the minimum time between two sort evaluations.
	SortInterval time.Duration
	// MinDragDistance is how far the pointer must travel since the last
	// evaluation before a new one runs.
	MinDragDistance int
	// MinBounceBackAngle (radians) is the direction change needed before the
	// card may move straight back into the slot it just left.
	MinBounceBackAngle float64
	// DragStartDistance is the movement needed to promote an armed card to
	// a drag. Zero promotes on the first movement.
	DragStartDistance int

	LayoutDuration time.Duration
	LayoutEasing   string

	// AlignRows runs row alignment after every relayout outside a drag.
	AlignRows  bool
	RowPadding int

	// Now is the time source; nil means time.Now.
	Now func() time.Time
	// NewSessionID names drag sessions; nil means uuid.NewString.
	NewSessionID func() string
}

// DefaultDragStartDistance is the pointer travel, in pixels, that promotes
// an armed card to a drag.
const DefaultDragStartDistance = 3

// DefaultOptions mirrors the dashboard's built-in tuning.
func DefaultOptions() Options {
	return Options{
		ContainerWidth:     1200,
		SortInterval:       50 * time.Millisecond,
		MinDragDistance:    10,
		MinBounceBackAngle: math.Pi / 2,
		DragStartDistance:  DefaultDragStartDistance,
		LayoutDuration:     300 * time.Millisecond,
		LayoutEasing:       "ease",
		RowPadding:         DefaultRowPadding,
	}
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.ContainerWidth <= 0 {
		o.ContainerWidth = d.ContainerWidth
	}
	if o.SortInterval < 0 {
		o.SortInterval = 0
	}
	if o.MinDragDistance < 0 {
		o.MinDragDistance = 0
	}
	if o.MinBounceBackAngle < 0 {
		o.MinBounceBackAngle = 0
	}
	if o.DragStartDistance < 0 {
		o.DragStartDistance = 0
	}
	if o.LayoutEasing == "" {
		o.LayoutEasing = d.LayoutEasing
	}
	if o.RowPadding <= 0 {
		o.RowPadding = d.RowPadding
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewSessionID == nil {
		o.NewSessionID = newSessionID
	}
}

// Engine is the card grid. One instance is owned by the dashboard and is
// handed to widgets that need to request relayout.
type Engine struct {
	mu      sync.Mutex
	opts    Options
	ready   bool
	cards   []*Card
	height  int
	session *Session

	subs    []subscription
	nextSub int
}

// New returns an engine that is not ready until Initialize succeeds.
func New() *Engine {
	return &Engine{}
}

// Initialize lays out the container's cards and enables drag handling.
// A nil container or one without cards leaves the engine not ready and
// returns nil; every dependent call then skips silently.
func (e *Engine) Initialize(c *Container, opts Options) error {
	if c == nil || len(c.Cards) == 0 {
		appLog.Info("grid: no cards found; engine stays uninitialized")
		return nil
	}

	e.mu.Lock()
	if e.ready {
		e.mu.Unlock()
		return ErrAlreadyInitialized
	}
	opts.normalize()
	if c.Width > 0 {
		opts.ContainerWidth = c.Width
	}
	e.opts = opts
	e.cards = make([]*Card, len(c.Cards))
	for i, card := range c.Cards {
		cp := *card
		e.cards[i] = &cp
	}
	e.ready = true
	e.relayoutLocked()
	ev := e.eventLocked(EventLayoutEnd, "")
	e.mu.Unlock()

	appLog.Info("grid initialized", "cards", len(c.Cards), "width", opts.ContainerWidth, "align_rows", opts.AlignRows)
	e.dispatch([]Event{ev})
	return nil
}

// Ready reports whether Initialize has laid out at least one card.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// RefreshAndRelayout recomputes every card position from the current
// sizes and emits LayoutEnd. It is safe to call at any time; on an engine
// that is not ready it does nothing.
func (e *Engine) RefreshAndRelayout() {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return
	}
	e.relayoutLocked()
	ev := e.eventLocked(EventLayoutEnd, "")
	e.mu.Unlock()
	e.dispatch([]Event{ev})
}

// Resize records a measured card size and relayouts.
func (e *Engine) Resize(id string, width, naturalHeight int) error {
	return e.ResizeAll(map[string]Size{id: {Width: width, Height: naturalHeight}})
}

// Size is a measured card size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ResizeAll records several measured sizes and relayouts once. Unknown ids
// are reported but the known ones are still applied.
func (e *Engine) ResizeAll(sizes map[string]Size) error {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return ErrNotReady
	}
	var unknown []error
	for id, sz := range sizes {
		c := e.findLocked(id)
		if c == nil {
			unknown = append(unknown, fmt.Errorf("%w: %s", ErrUnknownCard, id))
			continue
		}
		if sz.Width > 0 {
			c.Width = sz.Width
		}
		if sz.Height > 0 {
			c.NaturalHeight = sz.Height
		}
	}
	e.relayoutLocked()
	ev := e.eventLocked(EventLayoutEnd, "")
	e.mu.Unlock()
	e.dispatch([]Event{ev})
	return errors.Join(unknown...)
}

// Reorder puts the cards into the given id order. Unknown ids are
// ignored; cards missing from ids keep their relative order after the
// listed ones.
func (e *Engine) Reorder(ids []string) error {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return ErrNotReady
	}
	if e.session != nil {
		e.mu.Unlock()
		return ErrDragActive
	}
	e.cards = reorder(e.cards, ids)
	e.relayoutLocked()
	ev := e.eventLocked(EventLayoutEnd, "")
	e.mu.Unlock()
	e.dispatch([]Event{ev})
	return nil
}

func reorder(cards []*Card, ids []string) []*Card {
	byID := make(map[string]*Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	used := make(map[string]bool, len(cards))
	out := make([]*Card, 0, len(cards))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok || used[id] {
			continue
		}
		used[id] = true
		out = append(out, c)
	}
	for _, c := range cards {
		if !used[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Cards returns copies of the cards in grid order.
func (e *Engine) Cards() []Card {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Card, len(e.cards))
	for i, c := range e.cards {
		out[i] = *c
	}
	return out
}

// Order returns the card ids in grid order.
func (e *Engine) Order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderLocked()
}

// Snapshot returns every card's content in grid order.
func (e *Engine) Snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.cards))
	for i, c := range e.cards {
		out[i] = c.Content
	}
	return out
}

// State returns the current layout as an event-shaped value, for clients
// that connect after the last LayoutEnd.
func (e *Engine) State() Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eventLocked(EventLayoutEnd, "")
}

// Session returns a copy of the active drag session.
func (e *Engine) Session() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Session{}, false
	}
	s := *e.session
	s.OriginalOrder = append([]string(nil), e.session.OriginalOrder...)
	if e.session.Placeholder != nil {
		ph := *e.session.Placeholder
		s.Placeholder = &ph
	}
	return s, true
}

func (e *Engine) findLocked(id string) *Card {
	for _, c := range e.cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (e *Engine) indexLocked(id string) int {
	for i, c := range e.cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) orderLocked() []string {
	out := make([]string, len(e.cards))
	for i, c := range e.cards {
		out[i] = c.ID
	}
	return out
}

// relayoutLocked packs the cards. Row alignment runs first when enabled
// and no drag is active, followed by a second pack since forced heights
// change vertical extents.
func (e *Engine) relayoutLocked() {
	e.applyPackLocked()
	if e.opts.AlignRows && e.session == nil {
		AlignRows(e.cards, e.opts.RowPadding)
		e.applyPackLocked()
	}
}

func (e *Engine) applyPackLocked() {
	pts, height := packCards(e.opts.ContainerWidth, e.cards)
	e.height = height
	for i, c := range e.cards {
		if e.session != nil && e.session.State == StateDragging && c.ID == e.session.CardID {
			// The dragged card follows the pointer; its slot goes to the
			// placeholder.
			ph := e.session.Placeholder
			ph.X, ph.Y = pts[i].X, pts[i].Y
			ph.Width, ph.Height, ph.Margin = c.Width, c.Height(), c.Margin
			continue
		}
		c.X, c.Y = pts[i].X, pts[i].Y
	}
}

func (e *Engine) eventLocked(t EventType, cardID string) Event {
	ev := Event{
		Type:      t,
		CardID:    cardID,
		Order:     e.orderLocked(),
		Positions: make([]Position, len(e.cards)),
		Height:    e.height,
		Duration:  e.opts.LayoutDuration,
		Easing:    e.opts.LayoutEasing,
	}
	for i, c := range e.cards {
		ev.Positions[i] = c.position()
	}
	if e.session != nil {
		ev.SessionID = e.session.ID
		if e.session.Placeholder != nil {
			ph := *e.session.Placeholder
			ev.Placeholder = &ph
		}
	}
	return ev
}
