package feed

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"agendad/internal/dateparse"
	appLog "agendad/internal/log"
	"agendad/internal/model"
)

// occurrenceCap bounds expansion of a single recurring event so a broken
// rule cannot flood a discovery round.
const occurrenceCap = 500

// expandWindow turns parsed feed events into candidates dated within
// [rangeStart, rangeEnd], expanding recurrence rules and applying
// exception dates. Times are rendered in loc using the agenda's date
// grammar.
func expandWindow(events []feedEvent, rangeStart, rangeEnd time.Time, loc *time.Location) []model.CandidateEvent {
	out := make([]model.CandidateEvent, 0, len(events))
	for _, ev := range events {
		if ev.RawRRule == "" {
			if overlaps(ev.Start, ev.End, rangeStart, rangeEnd) {
				out = append(out, toCandidate(ev, ev.Start, ev.End, loc))
			}
			continue
		}
		out = append(out, expandRecurring(ev, rangeStart, rangeEnd, loc)...)
	}
	return out
}

func expandRecurring(ev feedEvent, rangeStart, rangeEnd time.Time, loc *time.Location) []model.CandidateEvent {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("feed rrule unparsable, event skipped", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(
		rangeStart.In(ev.Start.Location()),
		rangeEnd.In(ev.Start.Location()),
		true,
	)
	if len(starts) > occurrenceCap {
		appLog.Error("feed recurrence truncated", errors.New("occurrence cap reached"), "uid", ev.UID, "cap", occurrenceCap)
		starts = starts[:occurrenceCap]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.CandidateEvent, 0, len(starts))
	for _, start := range starts {
		end := start
		if dur > 0 {
			end = start.Add(dur)
		}
		out = append(out, toCandidate(ev, start, end, loc))
	}
	return out
}

// toCandidate renders one occurrence as a discovery candidate. All-day
// DTEND is exclusive in iCalendar, so a one-day all-day event collapses
// to a single display date.
func toCandidate(ev feedEvent, start, end time.Time, loc *time.Location) model.CandidateEvent {
	start = start.In(loc)
	end = end.In(loc)
	if ev.AllDay && !end.IsZero() {
		end = end.AddDate(0, 0, -1)
	}
	if end.Before(start) {
		end = start
	}

	return model.CandidateEvent{
		Title:       ev.Summary,
		DateText:    dateparse.FormatRange(start, end),
		Location:    ev.Location,
		Category:    ev.Source.Category,
		Description: ev.Description,
		SourceText:  ev.Source.ID,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.IsZero() {
		aEnd = aStart
	}
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
