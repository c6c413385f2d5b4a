package model

import (
	"sort"
	"time"
)

// Event is one entry of the "Today's Events" card, whatever calendar it
// came from.
type Event struct {
	// Source names the calendar: "primary", a public calendar id or an ICS
	// feed id.
	Source string `json:"source"`
	ID     string `json:"id"`

	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
	// Link points at the event in its calendar UI, if known.
	Link string `json:"link,omitempty"`

	AllDay bool `json:"all_day"`
	// Start and End are in the display location. All-day events start at
	// local midnight of their date.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SortByStart orders events by start time, keeping the source order for
// equal starts.
func SortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}

// Day returns local midnight of t's date and the following midnight.
func Day(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// Overlaps reports whether [start, end) meets [min, max). An event with no
// duration counts when it starts inside the window.
func Overlaps(start, end, min, max time.Time) bool {
	if !start.Before(max) {
		return false
	}
	if end.After(min) {
		return true
	}
	return !start.Before(min) && !end.After(start)
}
