// Package dateparse turns the free-form date strings carried by events
// into comparable times. The accepted grammar is a single "DD/MM/YYYY"
// date or a range "DD/MM/YYYY - DD/MM/YYYY"; only the first date of a
// range is significant.
package dateparse

import (
	"strconv"
	"strings"
	"time"
)

const displayLayout = "02/01/2006"

// Parse parses the first date of text at midnight in loc. The second
// return value is false when the text does not match the grammar;
// malformed input never produces an error or panic, only (zero, false).
func Parse(text string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	first := FirstDateKey(text)
	if first == "" {
		return time.Time{}, false
	}

	parts := strings.Split(first, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	day, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	year, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	// Reassembled year-first so calendar order and lexicographic order of
	// the reassembled form agree; time.Date preserves that ordering.
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
}

// FirstDateKey returns the first-date substring of text with surrounding
// whitespace stripped, without validating it. Events that share a written
// date (or range start) collapse to the same key even when the range
// separator is spaced differently.
func FirstDateKey(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if i := strings.Index(text, "-"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// Format renders t in the grammar's display form (DD/MM/YYYY).
func Format(t time.Time) string {
	return t.Format(displayLayout)
}

// FormatRange renders a start/end pair as a range, or a single date when
// end is zero or falls on the same day as start.
func FormatRange(start, end time.Time) string {
	if end.IsZero() {
		return Format(start)
	}
	if start.Year() == end.Year() && start.YearDay() == end.YearDay() {
		return Format(start)
	}
	return Format(start) + " - " + Format(end)
}

// ResolveLocation loads an IANA timezone name, falling back to local
// time when the name is empty or unknown.
func ResolveLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
