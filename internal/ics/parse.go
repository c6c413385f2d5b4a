package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "solara/internal/log"
)

// VEvent is a parsed VEVENT before recurrence expansion.
type VEvent struct {
	Feed Feed

	UID      string
	Summary  string
	Location string
	URL      string

	AllDay bool
	Start  time.Time
	End    time.Time

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on an override of one recurring instance.
	RecurrenceID *time.Time
}

// Parse reads every VEVENT of an iCalendar body. Date-only and floating
// values are placed in loc. Broken events are logged and skipped.
func Parse(feed Feed, body []byte, loc *time.Location) ([]VEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", feed.ID, err)
	}

	var out []VEvent
	for _, comp := range cal.Events() {
		ev, err := parseEvent(feed, comp, loc)
		if err != nil {
			appLog.Warn("ics: skipping event", "feed", feed.ID, "err", err.Error())
			continue
		}
		out = append(out, ev)
	}
	appLog.Debug("ics: parsed", "feed", feed.ID, "events", len(out))
	return out, nil
}

func parseEvent(feed Feed, ve *ical.VEvent, loc *time.Location) (VEvent, error) {
	ev := VEvent{Feed: feed}
	ev.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}
	ev.Summary = propValue(ve, ical.ComponentPropertySummary)
	ev.Location = propValue(ve, ical.ComponentPropertyLocation)
	ev.URL = propValue(ve, ical.ComponentProperty("URL"))
	ev.RRule = propValue(ve, ical.ComponentPropertyRrule)

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil || dtstart.Value == "" {
		return ev, errors.New("missing DTSTART")
	}
	ev.AllDay = isDate(dtstart)

	var err error
	ev.Start, err = propTime(dtstart, loc)
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil && dtend.Value != "" {
		ev.End, err = propTime(dtend, loc)
		if err != nil {
			return ev, fmt.Errorf("DTEND: %w", err)
		}
	}
	if ev.End.IsZero() || ev.End.Before(ev.Start) {
		ev.End = ev.Start
		if ev.AllDay {
			ev.End = ev.Start.AddDate(0, 0, 1)
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseValue(part, paramLocation(p, ev.Start.Location())); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if rid := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); rid != nil && rid.Value != "" {
		if t, err := propTime(rid, loc); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func isDate(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func paramLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tz := p.ICalParameters["TZID"]; len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return def
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseValue(p.Value, paramLocation(p, loc))
}

// parseValue reads DATE, floating DATE-TIME and UTC DATE-TIME forms.
func parseValue(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
