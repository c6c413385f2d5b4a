package grid

// Point is a grid-relative coordinate in whole pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Margin is the space kept around a card's box.
type Margin struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Card is one draggable dashboard panel.
//
// Widgets may change a card's content size (through Engine.Resize) but only
// the Engine moves cards.
type Card struct {
	// ID is the element id from the markup.
	ID string
	// Content is the card's inner markup. It is the card identity stored in
	// layout snapshots.
	Content string

	Width int
	// NaturalHeight is the measured height of the card box without any
	// forced minimum.
	NaturalHeight int
	// MinContentHeight is the forced minimum height of the content area,
	// written by row alignment. Zero means unset.
	MinContentHeight int
	// Padding is the vertical space the card adds around its content area.
	Padding int
	Margin  Margin

	// HandleHeight is the height of the drag handle strip at the top of the
	// card box. Cards without a handle cannot be dragged.
	HandleHeight int

	// X, Y locate the card's margin box within the grid.
	X int
	Y int

	Arming   bool
	Dragging bool
}

// Height is the rendered height of the card box.
func (c Card) Height() int {
	forced := 0
	if c.MinContentHeight > 0 {
		forced = c.MinContentHeight + c.Padding
	}
	if c.NaturalHeight > forced {
		return c.NaturalHeight
	}
	return forced
}

// OuterWidth and OuterHeight include margins; the packer works on these.
func (c Card) OuterWidth() int {
	return c.Width + c.Margin.Left + c.Margin.Right
}

func (c Card) OuterHeight() int {
	return c.Height() + c.Margin.Top + c.Margin.Bottom
}

// box returns the card's own rectangle, without margins.
func (c *Card) box() rect {
	return rect{x: c.X + c.Margin.Left, y: c.Y + c.Margin.Top, w: c.Width, h: c.Height()}
}

// inHandle reports whether p lies within the card's drag handle.
func (c *Card) inHandle(p Point) bool {
	if c.HandleHeight <= 0 {
		return false
	}
	b := c.box()
	b.h = min(c.HandleHeight, b.h)
	return b.contains(p)
}

// Placeholder marks the slot a dragged card left behind. It takes the
// card's size and margins.
type Placeholder struct {
	CardID string `json:"card_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Margin Margin `json:"margin"`
}

// Position is the public view of a laid-out card.
type Position struct {
	ID               string `json:"id"`
	X                int    `json:"x"`
	Y                int    `json:"y"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	MinContentHeight int    `json:"min_content_height,omitempty"`
	Arming           bool   `json:"arming,omitempty"`
	Dragging         bool   `json:"dragging,omitempty"`
}

func (c *Card) position() Position {
	return Position{
		ID:               c.ID,
		X:                c.X,
		Y:                c.Y,
		Width:            c.Width,
		Height:           c.Height(),
		MinContentHeight: c.MinContentHeight,
		Arming:           c.Arming,
		Dragging:         c.Dragging,
	}
}

type rect struct {
	x, y, w, h int
}

func (r rect) contains(p Point) bool {
	return p.X >= r.x && p.X < r.x+r.w && p.Y >= r.y && p.Y < r.y+r.h
}

func (r rect) overlaps(o rect) bool {
	return r.x < o.x+o.w && o.x < r.x+r.w && r.y < o.y+o.h && o.y < r.y+r.h
}

func (r rect) within(o rect) bool {
	return r.x >= o.x && r.y >= o.y && r.x+r.w <= o.x+o.w && r.y+r.h <= o.y+o.h
}
