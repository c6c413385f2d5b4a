package events

import (
	"strings"
	"time"

	"solara/internal/model"
)

// Item is one rendered row of the events card. Fields hold plain text.
type Item struct {
	ID       string `json:"id"`
	Time     string `json:"time"`
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
	Link     string `json:"link,omitempty"`
	AllDay   bool   `json:"all_day"`
}

const (
	allDayLabel  = "All day"
	untitled     = "(No title)"
	emptyMessage = "No events today."
	timeLayout   = "3:04 PM"
)

// Items formats events for display in loc.
func Items(events []model.Event, loc *time.Location) []Item {
	if loc == nil {
		loc = time.Local
	}
	out := make([]Item, 0, len(events))
	for _, ev := range events {
		it := Item{
			ID:       ev.ID,
			Title:    ev.Title,
			Location: ev.Location,
			Link:     ev.Link,
			AllDay:   ev.AllDay,
		}
		if it.Title == "" {
			it.Title = untitled
		}
		if ev.AllDay {
			it.Time = allDayLabel
		} else {
			it.Time = ev.Start.In(loc).Format(timeLayout) + "–" + ev.End.In(loc).Format(timeLayout)
		}
		out = append(out, it)
	}
	return out
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape replaces the five HTML special characters.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Render returns the list markup of the events card body.
func Render(events []model.Event, loc *time.Location) string {
	return RenderItems(Items(events, loc))
}

// RenderItems returns the list markup for already formatted items.
func RenderItems(items []Item) string {
	if len(items) == 0 {
		return `<p class="placeholder">` + emptyMessage + `</p>`
	}
	var b strings.Builder
	b.WriteString(`<ul class="events-list">`)
	for _, it := range items {
		title := Escape(it.Title)
		b.WriteString(`<li class="event"><div class="event-time">`)
		b.WriteString(Escape(it.Time))
		b.WriteString(`</div><div class="event-body"><div class="event-title" title="`)
		b.WriteString(title)
		b.WriteString(`">`)
		b.WriteString(title)
		b.WriteString(`</div>`)
		if it.Location != "" {
			b.WriteString(`<div class="event-location">`)
			b.WriteString(Escape(it.Location))
			b.WriteString(`</div>`)
		}
		if it.Link != "" {
			b.WriteString(`<a href="`)
			b.WriteString(Escape(it.Link))
			b.WriteString(`" target="_blank" rel="noopener">Open</a>`)
		}
		b.WriteString(`</div></li>`)
	}
	b.WriteString(`</ul>`)
	return b.String()
}
