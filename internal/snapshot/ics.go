package snapshot

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"agendad/internal/agenda"
	"agendad/internal/dateparse"
	appLog "agendad/internal/log"
	"agendad/internal/model"
)

// ExportICS renders the saved collection as a VCALENDAR so the agenda
// can be subscribed to from a regular calendar client. Events whose date
// text does not parse carry no usable DTSTART and are skipped.
func ExportICS(store *agenda.Store) []byte {
	loc := store.Location()
	saved := store.Saved()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//agendad//agendad//EN")

	skipped := 0
	for _, ev := range saved {
		date, ok := dateparse.Parse(ev.DateText, loc)
		if !ok {
			skipped++
			continue
		}
		addVEvent(cal, ev, date)
	}
	if skipped > 0 {
		appLog.Debug("ics export skipped events with unparsable dates", "count", skipped)
	}

	return []byte(cal.Serialize())
}

func addVEvent(cal *ical.Calendar, ev model.SavedEvent, date time.Time) {
	ve := cal.AddEvent(agenda.Slug(ev.Title) + "@agendad")
	ve.SetDtStampTime(time.Now().UTC())
	ve.SetAllDayStartAt(date)
	ve.SetAllDayEndAt(date.AddDate(0, 0, 1))
	ve.SetSummary(ev.Title)
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Category != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, ev.Category)
	}
	if ev.Status == model.StatusCancelled {
		ve.SetStatus(ical.ObjectStatusCancelled)
	}
}
