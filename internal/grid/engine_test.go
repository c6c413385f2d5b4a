package grid

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced time source.
type testClock struct{ now time.Time }

func newTestClock() *testClock { return &testClock{now: time.Unix(1_700_000_000, 0)} }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func point(x, y int) Point { return Point{X: x, Y: y} }

func ids(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

// sixCards builds a 3×2 grid of 280×200 cards with 10px margins in a 900px
// container: margin boxes are 300×220.
func sixCards() *Container {
	c := &Container{Width: 900}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		c.Cards = append(c.Cards, &Card{
			ID:            id,
			Content:       "<p>" + id + "</p>",
			Width:         280,
			NaturalHeight: 200,
			Padding:       20,
			Margin:        Margin{Top: 10, Right: 10, Bottom: 10, Left: 10},
			HandleHeight:  40,
		})
	}
	return c
}

func newTestEngine(t *testing.T, mutate func(*Options)) (*Engine, *testClock, *[]Event) {
	t.Helper()
	clock := newTestClock()
	opts := DefaultOptions()
	opts.Now = clock.Now
	opts.NewSessionID = func() string { return "session-1" }
	if mutate != nil {
		mutate(&opts)
	}
	e := New()
	var events []Event
	e.Subscribe(func(ev Event) { events = append(events, ev) })
	require.NoError(t, e.Initialize(sixCards(), opts))
	return e, clock, &events
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func findCard(t *testing.T, e *Engine, id string) Card {
	t.Helper()
	for _, c := range e.Cards() {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("card %q not found", id)
	return Card{}
}

func TestInitializeLaysOutRows(t *testing.T) {
	e, _, events := newTestEngine(t, nil)

	require.True(t, e.Ready())
	want := map[string]Point{
		"a": {0, 0}, "b": {300, 0}, "c": {600, 0},
		"d": {0, 220}, "e": {300, 220}, "f": {600, 220},
	}
	for _, c := range e.Cards() {
		assert.Equal(t, want[c.ID], Point{X: c.X, Y: c.Y}, c.ID)
	}
	require.Len(t, *events, 1)
	assert.Equal(t, EventLayoutEnd, (*events)[0].Type)
	assert.Equal(t, 440, (*events)[0].Height)
	assert.Equal(t, 300*time.Millisecond, (*events)[0].Duration)
}

func TestInitializeWithoutCardsStaysNotReady(t *testing.T) {
	e := New()
	require.NoError(t, e.Initialize(nil, DefaultOptions()))
	require.NoError(t, e.Initialize(&Container{}, DefaultOptions()))
	assert.False(t, e.Ready())

	// Dependent calls skip silently.
	e.RefreshAndRelayout()
	assert.False(t, e.PointerDown(point(20, 20)))
	e.PointerMove(point(30, 30))
	assert.Equal(t, OutcomeNone, e.PointerUp(point(30, 30)))
	assert.Equal(t, OutcomeNone, e.CancelDrag())
	assert.ErrorIs(t, e.Reorder([]string{"a"}), ErrNotReady)
	assert.ErrorIs(t, e.Resize("a", 10, 10), ErrNotReady)
	assert.Empty(t, e.Snapshot())
}

func TestInitializeTwice(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	assert.ErrorIs(t, e.Initialize(sixCards(), DefaultOptions()), ErrAlreadyInitialized)
}

func TestDragCommitMovesCardAndEmitsDragEnd(t *testing.T) {
	e, clock, events := newTestEngine(t, nil)
	*events = nil

	require.True(t, e.PointerDown(point(20, 20)))
	assert.True(t, findCard(t, e, "a").Arming, "armed before any movement")

	e.PointerMove(point(25, 20))
	s, ok := e.Session()
	require.True(t, ok)
	assert.Equal(t, StateDragging, s.State)
	require.NotNil(t, s.Placeholder)
	assert.Equal(t, Placeholder{CardID: "a", X: 0, Y: 0, Width: 280, Height: 200, Margin: Margin{10, 10, 10, 10}}, *s.Placeholder)
	a := findCard(t, e, "a")
	assert.False(t, a.Arming)
	assert.True(t, a.Dragging)

	clock.Advance(100 * time.Millisecond)
	e.PointerMove(point(450, 110)) // centre of b
	assert.Equal(t, []string{"b", "a", "c", "d", "e", "f"}, e.Order())
	s, _ = e.Session()
	assert.Equal(t, Point{300, 0}, Point{s.Placeholder.X, s.Placeholder.Y}, "placeholder takes the new slot")
	a = findCard(t, e, "a")
	assert.Equal(t, Point{430, 90}, Point{a.X, a.Y}, "dragged card follows the pointer")

	assert.Equal(t, OutcomeCommitted, e.PointerUp(point(450, 110)))
	_, ok = e.Session()
	assert.False(t, ok)
	a = findCard(t, e, "a")
	assert.Equal(t, Point{300, 0}, Point{a.X, a.Y})
	assert.False(t, a.Dragging)
	assert.False(t, a.Arming)

	assert.Equal(t, []EventType{EventDragArm, EventDragStart, EventDragMove, EventLayoutEnd, EventDragEnd, EventLayoutEnd}, eventTypes(*events))
	end := (*events)[4]
	assert.Equal(t, "a", end.CardID)
	assert.Equal(t, "session-1", end.SessionID)
	assert.Equal(t, []string{"b", "a", "c", "d", "e", "f"}, end.Order)
}

func TestCancelRestoresExactOrder(t *testing.T) {
	e, clock, events := newTestEngine(t, nil)
	before := e.Cards()
	*events = nil

	require.True(t, e.PointerDown(point(20, 20)))
	e.PointerMove(point(25, 20))
	clock.Advance(100 * time.Millisecond)
	e.PointerMove(point(450, 110))
	clock.Advance(100 * time.Millisecond)
	e.PointerMove(point(750, 330)) // centre of f
	require.NotEqual(t, ids(before), e.Order())

	assert.Equal(t, OutcomeCancelled, e.CancelDrag())
	after := e.Cards()
	assert.Equal(t, before, after)
	assert.NotContains(t, eventTypes(*events), EventDragEnd)
	assert.Equal(t, EventDragCancel, (*events)[len(*events)-2].Type)
}

func TestDragNeverChangesCardSet(t *testing.T) {
	e, clock, _ := newTestEngine(t, nil)
	path := []Point{{25, 20}, {450, 110}, {750, 110}, {150, 330}, {450, 330}, {150, 110}}

	require.True(t, e.PointerDown(point(20, 20)))
	for _, p := range path {
		clock.Advance(60 * time.Millisecond)
		e.PointerMove(p)
	}
	e.PointerUp(path[len(path)-1])

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, e.Order())
	assert.Len(t, e.Snapshot(), 6)
}

func TestClickWithoutMovementIsNotADrag(t *testing.T) {
	e, _, events := newTestEngine(t, nil)
	*events = nil

	require.True(t, e.PointerDown(point(20, 20)))
	assert.Equal(t, OutcomeClick, e.PointerUp(point(20, 20)))
	assert.Equal(t, []EventType{EventDragArm}, eventTypes(*events), "a click only arms")
	assert.False(t, findCard(t, e, "a").Arming)
}

func TestPointerDownEmitsArm(t *testing.T) {
	e, _, events := newTestEngine(t, nil)
	*events = nil

	require.True(t, e.PointerDown(point(320, 20)))
	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, EventDragArm, ev.Type)
	assert.Equal(t, "b", ev.CardID)
	assert.Equal(t, "session-1", ev.SessionID)
	assert.True(t, ev.Positions[1].Arming)
	assert.Nil(t, ev.Placeholder)
}

func TestDragMoveFollowsPointer(t *testing.T) {
	e, clock, events := newTestEngine(t, nil)

	require.True(t, e.PointerDown(point(20, 20)))
	e.PointerMove(point(25, 20))
	*events = nil

	// Small moves over the card's own slot never trigger a sort.
	path := []Point{{30, 20}, {34, 24}, {38, 28}, {40, 32}, {40, 35}}
	for _, p := range path {
		clock.Advance(60 * time.Millisecond)
		e.PointerMove(p)
	}

	require.Len(t, *events, len(path))
	for i, ev := range *events {
		assert.Equal(t, EventDragMove, ev.Type)
		assert.Equal(t, "a", ev.CardID)
		require.NotNil(t, ev.Placeholder)
		a := ev.Positions[0]
		assert.Equal(t, "a", a.ID)
		assert.True(t, a.Dragging)
		assert.Equal(t, Point{path[i].X - 20, path[i].Y - 20}, Point{a.X, a.Y})
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, e.Order())
}

func TestDragStartDistance(t *testing.T) {
	e, _, events := newTestEngine(t, nil)
	assert.Equal(t, DefaultDragStartDistance, DefaultOptions().DragStartDistance)
	*events = nil

	require.True(t, e.PointerDown(point(20, 20)))
	e.PointerMove(point(22, 21))
	s, ok := e.Session()
	require.True(t, ok)
	assert.Equal(t, StateArmed, s.State, "jitter within the threshold stays armed")

	e.PointerMove(point(24, 20))
	s, _ = e.Session()
	assert.Equal(t, StateDragging, s.State)
	assert.Equal(t, []EventType{EventDragArm, EventDragStart}, eventTypes(*events))
}

func TestPointerDownOutsideHandle(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	assert.False(t, e.PointerDown(point(100, 150)), "card body is not a handle")
	assert.False(t, e.PointerDown(point(295, 20)), "margin is not a handle")
	assert.True(t, e.PointerDown(point(320, 20)))
	assert.False(t, e.PointerDown(point(20, 20)), "one gesture at a time")
}

func TestNoSwapBelowMinDragDistance(t *testing.T) {
	e, clock, _ := newTestEngine(t, func(o *Options) { o.MinDragDistance = 500 })

	require.True(t, e.PointerDown(point(20, 20)))
	e.PointerMove(point(25, 20))
	clock.Advance(time.Second)
	e.PointerMove(point(450, 110)) // over b, but only ~440px from the start
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, e.Order())

	clock.Advance(time.Second)
	e.PointerMove(point(750, 110)) // over c, ~732px away
	assert.Equal(t, []string{"b", "c", "a", "d", "e", "f"}, e.Order())
}

func TestSortIntervalLimitsEvaluation(t *testing.T) {
	e, clock, _ := newTestEngine(t, nil)

	require.True(t, e.PointerDown(point(20, 20)))
	e.PointerMove(point(25, 20))
	e.PointerMove(point(450, 110)) // first evaluation runs immediately
	require.Equal(t, []string{"b", "a", "c", "d", "e", "f"}, e.Order())

	e.PointerMove(point(750, 110)) // same instant: skipped
	assert.Equal(t, []string{"b", "a", "c", "d", "e", "f"}, e.Order())

	clock.Advance(50 * time.Millisecond)
	e.PointerMove(point(760, 110))
	assert.Equal(t, []string{"b", "c", "a", "d", "e", "f"}, e.Order())
}

func TestBounceBackNeedsDirectionChange(t *testing.T) {
	tests := []struct {
		name      string
		angle     float64
		wantOrder []string
	}{
		{
			name:      "reversal beyond threshold moves back",
			angle:     math.Pi / 2,
			wantOrder: []string{"a", "b", "c", "d", "e", "f"},
		},
		{
			name:      "threshold larger than any reversal keeps the swap",
			angle:     math.Pi,
			wantOrder: []string{"b", "a", "c", "d", "e", "f"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, clock, _ := newTestEngine(t, func(o *Options) { o.MinBounceBackAngle = tt.angle })

			require.True(t, e.PointerDown(point(20, 20)))
			e.PointerMove(point(25, 20))
			e.PointerMove(point(450, 110))
			require.Equal(t, []string{"b", "a", "c", "d", "e", "f"}, e.Order())

			clock.Advance(100 * time.Millisecond)
			e.PointerMove(point(150, 110)) // straight back over b, now in slot 0
			assert.Equal(t, tt.wantOrder, e.Order())
		})
	}
}

func TestRelayoutDuringDragKeepsDraggedCardAtPointer(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	require.True(t, e.PointerDown(point(20, 20)))
	e.PointerMove(point(60, 40))

	e.RefreshAndRelayout()
	a := findCard(t, e, "a")
	assert.Equal(t, Point{40, 20}, Point{a.X, a.Y})
	assert.ErrorIs(t, e.Reorder([]string{"f"}), ErrDragActive)
}

func TestReorderIgnoresUnknownAndKeepsMissing(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	require.NoError(t, e.Reorder([]string{"f", "zz", "b", "f"}))
	assert.Equal(t, []string{"f", "b", "a", "c", "d", "e"}, e.Order())
	f := findCard(t, e, "f")
	assert.Equal(t, Point{0, 0}, Point{f.X, f.Y})
}

func TestResizeRelayouts(t *testing.T) {
	e, _, events := newTestEngine(t, nil)
	*events = nil

	require.NoError(t, e.Resize("a", 0, 400))
	assert.Equal(t, 400, findCard(t, e, "a").Height())
	d := findCard(t, e, "d")
	assert.Equal(t, Point{300, 220}, Point{d.X, d.Y}, "d moves under the shorter column")
	assert.Equal(t, []EventType{EventLayoutEnd}, eventTypes(*events))

	err := e.ResizeAll(map[string]Size{"nope": {Width: 1, Height: 1}})
	assert.ErrorIs(t, err, ErrUnknownCard)
}

func TestAlignRowsInEngine(t *testing.T) {
	c := sixCards()
	c.Cards = c.Cards[:4]
	c.Cards[0].NaturalHeight = 200
	c.Cards[1].NaturalHeight = 260
	c.Cards[2].NaturalHeight = 220
	c.Cards[3].NaturalHeight = 100

	plain := New()
	require.NoError(t, plain.Initialize(c, DefaultOptions()))
	d := findCard(t, plain, "d")
	assert.Equal(t, Point{0, 220}, Point{d.X, d.Y})

	opts := DefaultOptions()
	opts.AlignRows = true
	aligned := New()
	require.NoError(t, aligned.Initialize(c, opts))
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, 260, findCard(t, aligned, id).Height(), id)
		assert.Equal(t, 240, findCard(t, aligned, id).MinContentHeight, id)
	}
	d = findCard(t, aligned, "d")
	assert.Equal(t, Point{0, 280}, Point{d.X, d.Y})
}

func TestAlignedRowShrinksAfterRemeasure(t *testing.T) {
	e, _, _ := newTestEngine(t, func(o *Options) { o.AlignRows = true })

	require.NoError(t, e.Resize("a", 0, 400))
	for _, id := range []string{"a", "b", "c"} {
		c := findCard(t, e, id)
		assert.Equal(t, 400, c.Height(), id)
		assert.Equal(t, 380, c.MinContentHeight, id)
	}
	assert.Equal(t, 200, findCard(t, e, "b").NaturalHeight, "forced height is not natural height")

	// The page clears forced minimums before it measures.
	require.NoError(t, e.ResizeAll(map[string]Size{
		"a": {Width: 280, Height: 200},
		"b": {Width: 280, Height: 200},
		"c": {Width: 280, Height: 200},
	}))
	for _, id := range []string{"a", "b", "c"} {
		c := findCard(t, e, id)
		assert.Equal(t, 200, c.Height(), id)
		assert.Equal(t, 180, c.MinContentHeight, id)
	}
	d := findCard(t, e, "d")
	assert.Equal(t, Point{0, 220}, Point{d.X, d.Y})
}

func TestUnsubscribe(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	n := 0
	stop := e.Subscribe(func(Event) { n++ })
	e.RefreshAndRelayout()
	stop()
	e.RefreshAndRelayout()
	assert.Equal(t, 1, n)
}

func TestHandlerMayCallBackIntoEngine(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	var snap []string
	e.Subscribe(func(ev Event) {
		if ev.Type == EventLayoutEnd {
			snap = e.Snapshot()
		}
	})
	e.RefreshAndRelayout()
	assert.Len(t, snap, 6)
}
