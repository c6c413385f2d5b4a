package grid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardMarkup = `<!doctype html>
<html><body>
<header class="card-item" id="outside"><div class="drag-handle"></div></header>
<main class="grid" data-width="900">
  <div class="card-item" id="clock-card" data-width="280" data-height="180">
    <div class="drag-handle">⠿</div>
    <div class="card-content"><span id="clock"></span></div>
  </div>
  <div class="card-item" id="weather-card" data-margin="8" data-handle-height="32">
    <div class="drag-handle">⠿</div>
    <div class="card-content"><span class="temperature"></span></div>
  </div>
  <div class="card-item">
    <div class="card-content">static note</div>
  </div>
</main>
</body></html>`

func TestDiscoverFindsCardsInOrder(t *testing.T) {
	c, err := Discover(strings.NewReader(dashboardMarkup), DefaultSelectors())
	require.NoError(t, err)

	assert.Equal(t, 900, c.Width)
	require.Len(t, c.Cards, 3)

	clock := c.Cards[0]
	assert.Equal(t, "clock-card", clock.ID)
	assert.Equal(t, 280, clock.Width)
	assert.Equal(t, 180, clock.NaturalHeight)
	assert.Equal(t, DefaultHandleHeight, clock.HandleHeight)
	assert.Equal(t, Margin{10, 10, 10, 10}, clock.Margin)
	assert.Contains(t, clock.Content, `<span id="clock"></span>`)
	assert.NotContains(t, clock.Content, "clock-card", "content is the inner markup")

	weather := c.Cards[1]
	assert.Equal(t, DefaultCardWidth, weather.Width)
	assert.Equal(t, DefaultCardHeight, weather.NaturalHeight)
	assert.Equal(t, 32, weather.HandleHeight)
	assert.Equal(t, Margin{8, 8, 8, 8}, weather.Margin)

	note := c.Cards[2]
	assert.Equal(t, "card-2", note.ID)
	assert.Zero(t, note.HandleHeight, "no handle, not draggable")
}

func TestDiscoverWithoutContainer(t *testing.T) {
	_, err := Discover(strings.NewReader(`<div class="card-item"></div>`), DefaultSelectors())
	assert.ErrorIs(t, err, ErrNoCards)

	_, err = Discover(strings.NewReader(`<div class="grid"></div>`), Selectors{})
	assert.ErrorIs(t, err, ErrNoCards)
}

func TestDiscoverRejectsDuplicateIDs(t *testing.T) {
	markup := `<div class="grid"><div class="card-item" id="x"></div><div class="card-item" id="x"></div></div>`
	_, err := Discover(strings.NewReader(markup), DefaultSelectors())
	assert.ErrorContains(t, err, `duplicate card id "x"`)
}
