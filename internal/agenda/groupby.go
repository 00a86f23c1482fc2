package agenda

import (
	"sort"
	"time"

	"agendad/internal/dateparse"
	"agendad/internal/model"
)

// DateGroup is one calendar bucket: the raw first-date key and the
// events that share it, in encounter order.
type DateGroup struct {
	Key    string
	Events []model.SavedEvent
}

// GroupByDate buckets events by the first-date substring of their date
// text (raw text, whitespace-normalized, so the same written date always
// lands in one bucket). Groups are ordered by parsed date; groups whose
// key does not parse sort after all parsable ones, keeping encounter
// order among themselves.
func GroupByDate(events []model.SavedEvent, loc *time.Location) []DateGroup {
	groups := make([]DateGroup, 0)
	index := make(map[string]int)

	for _, ev := range events {
		key := dateparse.FirstDateKey(ev.DateText)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DateGroup{Key: key})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		ta, oka := dateparse.Parse(groups[a].Key, loc)
		tb, okb := dateparse.Parse(groups[b].Key, loc)
		switch {
		case oka && okb:
			return ta.Before(tb)
		case oka:
			return true
		default:
			return false
		}
	})

	return groups
}
