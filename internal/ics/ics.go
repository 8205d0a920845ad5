// Package ics converts timeline events to and from iCalendar.
//
// Events are exported as all-day VEVENTs. A range event's end date becomes
// DTEND unchanged: DTEND is exclusive in iCalendar and the end date is the
// boundary the duration is measured to, so both describe the same span. The
// layer travels as the first CATEGORIES value.
package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"chronos/internal/domain"
	"chronos/internal/timeline"
)

const uidSuffix = "@chronos"

// Item is one event read from a calendar.
type Item struct {
	UID         string
	Title       string
	Start       time.Time
	End         *time.Time
	Layer       string
	Color       string
	Description string
}

// Export writes events as a calendar. Layer ids are resolved to names
// through layers.
func Export(events []domain.Event, layers []domain.Layer, now time.Time) string {
	names := make(map[string]string, len(layers))
	for _, l := range layers {
		names[l.ID] = l.Name
	}
	cal := ical.NewCalendarFor("chronos")
	cal.SetMethod(ical.MethodPublish)
	cal.SetName("Chronos")
	for _, e := range events {
		ve := cal.AddEvent(e.ID + uidSuffix)
		ve.SetDtStampTime(now)
		ve.SetSummary(e.Title)
		ve.SetAllDayStartAt(e.StartDate)
		if e.EndDate != nil {
			ve.SetAllDayEndAt(*e.EndDate)
		}
		if name, ok := names[e.LayerID]; ok {
			ve.AddCategory(name)
		}
		if e.Color != "" {
			ve.SetColor(e.Color)
		}
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
	}
	return cal.Serialize()
}

// Parse reads every VEVENT of a calendar. Events without a readable start
// or with an unreadable end are left out and counted in skipped.
func Parse(r io.Reader) (items []Item, skipped int, err error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, 0, fmt.Errorf("parse calendar: %w", err)
	}
	for _, ve := range cal.Events() {
		it, ok := parseEvent(ve)
		if !ok {
			skipped++
			continue
		}
		items = append(items, it)
	}
	return items, skipped, nil
}

func parseEvent(ve *ical.VEvent) (Item, bool) {
	start, err := ve.GetAllDayStartAt()
	if err != nil {
		return Item{}, false
	}
	it := Item{
		UID:         strings.TrimSuffix(ve.Id(), uidSuffix),
		Title:       value(ve, ical.ComponentPropertySummary),
		Start:       timeline.Day(start),
		Color:       value(ve, ical.ComponentPropertyColor),
		Description: value(ve, ical.ComponentPropertyDescription),
	}
	if ve.HasProperty(ical.ComponentPropertyDtEnd) {
		end, err := ve.GetAllDayEndAt()
		if err != nil {
			return Item{}, false
		}
		d := timeline.Day(end)
		it.End = &d
	}
	if cats := value(ve, ical.ComponentPropertyCategories); cats != "" {
		it.Layer = strings.TrimSpace(strings.Split(cats, ",")[0])
	}
	return it, true
}

func value(ve *ical.VEvent, p ical.ComponentProperty) string {
	prop := ve.GetProperty(p)
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(prop.Value)
}
