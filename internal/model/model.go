package model

import "time"

// Status is the user-assigned planning state of a saved event.
type Status string

const (
	StatusUnset     Status = ""
	StatusConfirmed Status = "confirmed"
	StatusMaybe     Status = "maybe"
	StatusAttended  Status = "attended"
	StatusCancelled Status = "cancelled"
)

// ParseStatus normalizes a stored status string. Unknown values collapse
// to StatusUnset rather than failing, so old snapshots stay loadable.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusConfirmed, StatusMaybe, StatusAttended, StatusCancelled:
		return Status(s)
	default:
		return StatusUnset
	}
}

// CandidateEvent is a discovered, not-yet-saved event. It is produced by
// a discovery round and discarded at the next one; the agenda never
// retains candidates.
type CandidateEvent struct {
	Title       string
	DateText    string // free-form, see dateparse for the accepted grammar
	Location    string
	Category    string
	Description string
	SourceText  string
}

// SavedEvent is a candidate promoted into the personal agenda, plus the
// user's annotations. Identity is the exact Title string; the store keeps
// at most one saved event per title.
type SavedEvent struct {
	CandidateEvent

	Notes  string
	Status Status

	// Contacts keeps insertion order; duplicates are allowed.
	Contacts []string

	// ReminderLead, when non-nil, is the duration before the parsed
	// event date at which a reminder fires. Never negative.
	ReminderLead *time.Duration
}

// HistoryEvent is a saved event frozen at the moment it was marked
// attended. The core never mutates or removes history entries.
type HistoryEvent struct {
	SavedEvent
}

// Category is one entry of the category registry.
type Category struct {
	ID    string // slug derived from Label, unique within the registry
	Label string
}

// Clone returns a deep copy so callers can hand events across goroutine
// or API boundaries without aliasing the store's contacts slice.
func (e SavedEvent) Clone() SavedEvent {
	out := e
	if e.Contacts != nil {
		out.Contacts = append([]string(nil), e.Contacts...)
	}
	if e.ReminderLead != nil {
		lead := *e.ReminderLead
		out.ReminderLead = &lead
	}
	return out
}
