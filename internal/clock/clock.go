// Package clock formats the clock card.
package clock

import (
	"fmt"
	"time"
)

// Display is the text of the clock card.
type Display struct {
	Time string `json:"time"`
	Date string `json:"date"`
}

// Format renders t as "hh:mm:ss A.M" in 12-hour form (midnight and noon
// show as 12) and its date as "Monday, January 2, 2006".
func Format(t time.Time) Display {
	h := t.Hour() % 12
	if h == 0 {
		h = 12
	}
	suffix := "A.M"
	if t.Hour() >= 12 {
		suffix = "P.M"
	}
	return Display{
		Time: fmt.Sprintf("%02d:%02d:%02d %s", h, t.Minute(), t.Second(), suffix),
		Date: t.Format("Monday, January 2, 2006"),
	}
}
