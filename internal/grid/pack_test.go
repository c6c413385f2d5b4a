package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func box(id string, w, h int) *Card {
	return &Card{ID: id, Width: w, NaturalHeight: h}
}

func TestPackFlowsTopToBottom(t *testing.T) {
	cards := []*Card{box("a", 300, 420), box("b", 300, 220), box("c", 300, 220), box("d", 300, 220), box("e", 300, 220)}
	pts, height := packCards(900, cards)

	assert.Equal(t, []Point{{0, 0}, {300, 0}, {600, 0}, {300, 220}, {600, 220}}, pts)
	assert.Equal(t, 440, height)
}

func TestPackDoesNotFillGapsBehindLaterCards(t *testing.T) {
	// The hole below b stays empty once c has been placed under a.
	cards := []*Card{box("a", 600, 300), box("b", 300, 100), box("c", 900, 100), box("d", 300, 50)}
	pts, height := packCards(900, cards)

	assert.Equal(t, Point{0, 0}, pts[0])
	assert.Equal(t, Point{600, 0}, pts[1])
	assert.Equal(t, Point{0, 300}, pts[2])
	assert.Equal(t, Point{0, 400}, pts[3], "d is not pulled up below b")
	assert.Equal(t, 450, height)
}

func TestPackOversizedCardStartsNewRow(t *testing.T) {
	cards := []*Card{box("a", 300, 220), box("wide", 1000, 100), box("c", 300, 220)}
	pts, height := packCards(900, cards)

	assert.Equal(t, []Point{{0, 0}, {0, 220}, {0, 320}}, pts)
	assert.Equal(t, 540, height)
}

func TestPackNeverOverlaps(t *testing.T) {
	sizes := [][2]int{{300, 120}, {300, 260}, {600, 80}, {300, 40}, {300, 300}, {900, 60}, {300, 90}}
	cards := make([]*Card, len(sizes))
	for i, s := range sizes {
		cards[i] = box(string(rune('a'+i)), s[0], s[1])
	}
	pts, _ := packCards(900, cards)

	for i := range cards {
		ri := rect{x: pts[i].X, y: pts[i].Y, w: cards[i].OuterWidth(), h: cards[i].OuterHeight()}
		for j := i + 1; j < len(cards); j++ {
			rj := rect{x: pts[j].X, y: pts[j].Y, w: cards[j].OuterWidth(), h: cards[j].OuterHeight()}
			assert.False(t, ri.overlaps(rj), "%s overlaps %s", cards[i].ID, cards[j].ID)
		}
	}
}
