package grid

import (
	"math"
	"sort"
)

// unbounded is the height of the free space below the grid.
const unbounded = math.MaxInt32

// packer places boxes in order into a fixed-width container, top to bottom
// and then left to right, using a list of maximal free rectangles.
//
// Gap filling is disabled: once a box is placed, no later box may land
// above it or to its left on the same row, so the visual order follows the
// item order.
type packer struct {
	width int
	slots []rect
	// low is the bottom edge of everything placed so far.
	low int
}

func newPacker(width int) *packer {
	return &packer{width: width, slots: []rect{{x: 0, y: 0, w: width, h: unbounded}}}
}

// place finds a position for a w×h box and reserves it.
func (p *packer) place(w, h int) Point {
	pos, ok := p.firstFit(w, h)
	if !ok {
		// Wider than the container: start a new row at the bottom.
		pos = Point{X: 0, Y: p.low}
	}
	p.reserve(rect{x: pos.X, y: pos.Y, w: w, h: h})
	return pos
}

func (p *packer) firstFit(w, h int) (Point, bool) {
	for _, s := range p.slots {
		if s.w >= w && s.h >= h {
			return Point{X: s.x, Y: s.y}, true
		}
	}
	return Point{}, false
}

func (p *packer) reserve(r rect) {
	p.low = max(p.low, r.y+r.h)
	next := make([]rect, 0, len(p.slots)+4)
	for _, s := range p.slots {
		if !s.overlaps(r) {
			next = append(next, s)
			continue
		}
		next = append(next, split(s, r)...)
	}

	// Later boxes may not go before r.
	kept := next[:0]
	for _, s := range next {
		if s.y < r.y {
			cut := r.y - s.y
			s.y = r.y
			s.h -= cut
		}
		if s.y == r.y && s.x+s.w <= r.x {
			continue
		}
		if s.w > 0 && s.h > 0 {
			kept = append(kept, s)
		}
	}

	p.slots = prune(kept)
	sort.SliceStable(p.slots, func(i, j int) bool {
		if p.slots[i].y != p.slots[j].y {
			return p.slots[i].y < p.slots[j].y
		}
		return p.slots[i].x < p.slots[j].x
	})
}

// split returns the parts of free slot s not covered by r.
func split(s, r rect) []rect {
	out := make([]rect, 0, 4)
	if r.x > s.x {
		out = append(out, rect{x: s.x, y: s.y, w: r.x - s.x, h: s.h})
	}
	if r.x+r.w < s.x+s.w {
		out = append(out, rect{x: r.x + r.w, y: s.y, w: s.x + s.w - (r.x + r.w), h: s.h})
	}
	if r.y > s.y {
		out = append(out, rect{x: s.x, y: s.y, w: s.w, h: r.y - s.y})
	}
	if r.y+r.h < s.y+s.h {
		out = append(out, rect{x: s.x, y: r.y + r.h, w: s.w, h: s.y + s.h - (r.y + r.h)})
	}
	return out
}

// prune drops duplicate slots and slots contained in another slot.
func prune(slots []rect) []rect {
	out := make([]rect, 0, len(slots))
	for i, a := range slots {
		redundant := false
		for j, b := range slots {
			if i == j {
				continue
			}
			if a == b && j < i {
				redundant = true
				break
			}
			if a != b && a.within(b) {
				redundant = true
				break
			}
		}
		if !redundant {
			out = append(out, a)
		}
	}
	return out
}

// packCards computes margin-box positions for cards in order and returns
// them together with the resulting grid height.
func packCards(width int, cards []*Card) ([]Point, int) {
	p := newPacker(width)
	pts := make([]Point, len(cards))
	height := 0
	for i, c := range cards {
		pts[i] = p.place(c.OuterWidth(), c.OuterHeight())
		height = max(height, pts[i].Y+c.OuterHeight())
	}
	return pts, height
}
