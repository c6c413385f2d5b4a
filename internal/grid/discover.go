package grid

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoCards is returned by Discover when the markup has no container or
// the container holds no cards.
var ErrNoCards = errors.New("grid: no cards found")

// Defaults applied to cards whose markup omits a size attribute.
const (
	DefaultCardWidth    = 360
	DefaultCardHeight   = 240
	DefaultCardMargin   = 10
	DefaultHandleHeight = 48
)

// Selectors locate the grid pieces in dashboard markup.
type Selectors struct {
	Container string
	Item      string
	Handle    string
}

// DefaultSelectors matches the embedded dashboard page.
func DefaultSelectors() Selectors {
	return Selectors{Container: ".grid", Item: ".card-item", Handle: ".drag-handle"}
}

// Container is the set of cards found under the grid element.
type Container struct {
	// Width overrides Options.ContainerWidth when the markup carries
	// data-width on the container.
	Width int
	Cards []*Card
}

// Discover parses dashboard markup and returns the cards of the first
// element matching sel.Container, in document order.
//
// Recognized attributes on a card: id, data-width, data-height,
// data-margin, data-padding, data-handle-height. A card without a handle
// element gets HandleHeight 0 and cannot be dragged.
func Discover(r io.Reader, sel Selectors) (*Container, error) {
	def := DefaultSelectors()
	if sel.Container == "" {
		sel.Container = def.Container
	}
	if sel.Item == "" {
		sel.Item = def.Item
	}
	if sel.Handle == "" {
		sel.Handle = def.Handle
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("grid: parse markup: %w", err)
	}

	root := doc.Find(sel.Container).First()
	if root.Length() == 0 {
		return nil, ErrNoCards
	}

	c := &Container{Width: intAttr(root, "data-width", 0)}
	var errs []error
	seen := make(map[string]bool)
	root.Find(sel.Item).Each(func(i int, item *goquery.Selection) {
		content, err := item.Html()
		if err != nil {
			errs = append(errs, fmt.Errorf("grid: card %d: %w", i, err))
			return
		}
		id, ok := item.Attr("id")
		if !ok || strings.TrimSpace(id) == "" {
			id = "card-" + strconv.Itoa(i)
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("grid: duplicate card id %q", id))
			return
		}
		seen[id] = true

		m := intAttr(item, "data-margin", DefaultCardMargin)
		card := &Card{
			ID:            id,
			Content:       strings.TrimSpace(content),
			Width:         intAttr(item, "data-width", DefaultCardWidth),
			NaturalHeight: intAttr(item, "data-height", DefaultCardHeight),
			Padding:       intAttr(item, "data-padding", DefaultRowPadding),
			Margin:        Margin{Top: m, Right: m, Bottom: m, Left: m},
		}
		if item.Find(sel.Handle).Length() > 0 {
			card.HandleHeight = intAttr(item, "data-handle-height", DefaultHandleHeight)
		}
		c.Cards = append(c.Cards, card)
	})
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(c.Cards) == 0 {
		return nil, ErrNoCards
	}
	return c, nil
}

func intAttr(s *goquery.Selection, name string, def int) int {
	v, ok := s.Attr(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return def
	}
	return n
}
