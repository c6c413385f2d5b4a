package grid

import "sort"

// DefaultRowPadding is subtracted from the tallest card of a row to get the
// content minimum height.
const DefaultRowPadding = 20

// Row is a transient group of cards that share a vertical offset.
type Row struct {
	Y     int
	Cards []*Card
}

// GroupRows groups cards by their top offset, ordered top to bottom.
// Membership order follows the input order.
func GroupRows(cards []*Card) []Row {
	byY := make(map[int]*Row)
	var ys []int
	for _, c := range cards {
		r, ok := byY[c.Y]
		if !ok {
			r = &Row{Y: c.Y}
			byY[c.Y] = r
			ys = append(ys, c.Y)
		}
		r.Cards = append(r.Cards, c)
	}
	sort.Ints(ys)
	rows := make([]Row, 0, len(ys))
	for _, y := range ys {
		rows = append(rows, *byY[y])
	}
	return rows
}

// AlignRows equalizes card heights within each row. Forced heights are
// cleared before the row maxima are measured, so running it twice gives the
// same result as running it once.
//
// Callers must relayout afterwards: forcing heights changes vertical extents.
func AlignRows(cards []*Card, padding int) {
	for _, c := range cards {
		c.MinContentHeight = 0
	}
	for _, row := range GroupRows(cards) {
		tallest := 0
		for _, c := range row.Cards {
			tallest = max(tallest, c.Height())
		}
		for _, c := range row.Cards {
			c.MinContentHeight = max(tallest-padding, 0)
		}
	}
}
