package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "solara/internal/log"
	"solara/internal/model"
)

// maxInstances caps one recurring event inside the window.
const maxInstances = 500

// Expand returns the instances of events that overlap [min, max), with
// recurrences expanded, EXDATEs removed and RECURRENCE-ID overrides put in
// place of the instance they replace. Times are converted to loc.
func Expand(events []VEvent, min, max time.Time, loc *time.Location) []model.Event {
	if loc == nil {
		loc = time.Local
	}
	overrides := make(map[string][]VEvent)
	var bases []VEvent
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	var out []model.Event
	seen := make(map[string]bool)
	add := func(e model.Event) {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	for _, ev := range bases {
		if ev.RRule == "" {
			if model.Overlaps(ev.Start, ev.End, min, max) {
				add(toModel(ev, ev.Start, ev.End, loc))
			}
			continue
		}
		for _, e := range expandRecurring(ev, overrides[ev.UID], min, max, loc) {
			add(e)
		}
	}

	// Overrides moved into the window from an instance outside it.
	for _, list := range overrides {
		for _, o := range list {
			if model.Overlaps(o.Start, o.End, min, max) {
				add(toModel(o, o.Start, o.End, loc))
			}
		}
	}
	model.SortByStart(out)
	return out
}

func expandRecurring(ev VEvent, overrides []VEvent, min, max time.Time, loc *time.Location) []model.Event {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Warn("ics: bad RRULE", "uid", ev.UID, "err", err.Error())
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	from := min.Add(-dur).In(ev.Start.Location())
	to := max.In(ev.Start.Location())
	starts := set.Between(from, to, true)
	if len(starts) > maxInstances {
		appLog.Warn("ics: recurrence truncated", "uid", ev.UID, "instances", len(starts))
		starts = starts[:maxInstances]
	}

	var out []model.Event
	for _, start := range starts {
		end := start.Add(dur)
		if ev.AllDay {
			end = start.AddDate(0, 0, 1)
		}
		if o, ok := overrideFor(overrides, start); ok {
			if model.Overlaps(o.Start, o.End, min, max) {
				out = append(out, toModel(o, o.Start, o.End, loc))
			}
			continue
		}
		if model.Overlaps(start, end, min, max) {
			out = append(out, toModel(ev, start, end, loc))
		}
	}
	return out
}

func overrideFor(overrides []VEvent, start time.Time) (VEvent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return VEvent{}, false
}

// toModel builds the card entry. The id names the instance by its
// original start so an override and the instance it replaces collide.
func toModel(ev VEvent, start, end time.Time, loc *time.Location) model.Event {
	instant := start
	if ev.RecurrenceID != nil {
		instant = *ev.RecurrenceID
	}
	out := model.Event{
		Source:   ev.Feed.ID,
		ID:       ev.UID + "@" + instant.UTC().Format("20060102T150405Z"),
		Title:    ev.Summary,
		Location: ev.Location,
		Link:     ev.URL,
		AllDay:   ev.AllDay,
		Start:    start.In(loc),
		End:      end.In(loc),
	}
	if ev.AllDay {
		// A date keeps its calendar day in the display location.
		y, m, d := start.Date()
		out.Start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		y, m, d = end.Date()
		out.End = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return out
}
