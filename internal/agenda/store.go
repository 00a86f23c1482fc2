// Package agenda owns the three event collections (candidates are
// transient and never stored): saved events, history, and the category
// registry. Every mutation notifies a single change hook so the reminder
// scheduler can rebuild its timers.
package agenda

import (
	"strings"
	"sync"
	"time"

	appLog "agendad/internal/log"
	"agendad/internal/model"
)

// defaultCategories seed the registry on construction. Users may append
// custom labels via RegisterCategory.
var defaultCategories = []string{
	"Social",
	"Cultural",
	"Sports",
	"Music",
	"Community",
}

// Store holds the agenda state. All methods are safe for concurrent use;
// the change hook runs outside the lock, after the mutation is visible.
type Store struct {
	mu         sync.Mutex
	loc        *time.Location
	saved      []model.SavedEvent
	history    []model.HistoryEvent
	categories []model.Category
	onChange   func()
}

// New constructs a Store with the default category seed. loc is the
// timezone used for date parsing in grouping; nil means local time.
func New(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	s := &Store{loc: loc}
	for _, label := range defaultCategories {
		s.registerCategoryLocked(label)
	}
	return s
}

// SetOnChange installs the hook invoked after every mutation of the
// saved collection. Passing nil removes it.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Location returns the timezone the store parses dates in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Save promotes a candidate into the saved collection with blank
// annotations. It is a no-op when a saved event with the same title
// already exists. Only the saved collection is consulted: re-saving a
// title that was previously attended deliberately creates a fresh,
// independent record.
func (s *Store) Save(c model.CandidateEvent) {
	s.mu.Lock()
	if s.findSavedLocked(c.Title) >= 0 {
		s.mu.Unlock()
		appLog.Debug("save skipped, title already saved", "title", c.Title)
		return
	}
	ev := model.SavedEvent{
		CandidateEvent: c,
		Notes:          "",
		Status:         model.StatusUnset,
		Contacts:       []string{},
	}
	s.saved = append(s.saved, ev)
	s.mu.Unlock()

	appLog.Info("event saved", "title", c.Title, "date", c.DateText)
	s.fireChange()
}

// SetNotes replaces the notes of the saved event with the given title.
// Unknown titles are silently ignored, as are all annotation setters.
func (s *Store) SetNotes(title, notes string) {
	s.mutate(title, func(ev *model.SavedEvent) {
		ev.Notes = notes
	})
}

// SetStatus replaces the planning status.
func (s *Store) SetStatus(title string, status model.Status) {
	s.mutate(title, func(ev *model.SavedEvent) {
		ev.Status = status
	})
}

// SetCategory replaces the category.
func (s *Store) SetCategory(title, category string) {
	s.mutate(title, func(ev *model.SavedEvent) {
		ev.Category = category
	})
}

// SetReminderLead sets or clears the reminder lead time. Negative leads
// are ignored; a lead always measures backward from the event date.
func (s *Store) SetReminderLead(title string, lead *time.Duration) {
	if lead != nil && *lead < 0 {
		appLog.Debug("negative reminder lead ignored", "title", title, "lead", *lead)
		return
	}
	s.mutate(title, func(ev *model.SavedEvent) {
		if lead == nil {
			ev.ReminderLead = nil
			return
		}
		d := *lead
		ev.ReminderLead = &d
	})
}

// AddContact appends a contact. Duplicates are allowed and insertion
// order is preserved.
func (s *Store) AddContact(title, contact string) {
	s.mutate(title, func(ev *model.SavedEvent) {
		ev.Contacts = append(ev.Contacts, contact)
	})
}

// RemoveContact filters out every occurrence of contact.
func (s *Store) RemoveContact(title, contact string) {
	s.mutate(title, func(ev *model.SavedEvent) {
		kept := ev.Contacts[:0]
		for _, c := range ev.Contacts {
			if c != contact {
				kept = append(kept, c)
			}
		}
		ev.Contacts = kept
	})
}

// Remove deletes the saved event with the given title; no-op if absent.
func (s *Store) Remove(title string) {
	s.mu.Lock()
	i := s.findSavedLocked(title)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.saved = append(s.saved[:i], s.saved[i+1:]...)
	s.mu.Unlock()

	appLog.Info("event removed", "title", title)
	s.fireChange()
}

// PromoteToHistory moves a saved event into history with status
// attended. Calling it again for the same title is a no-op; history
// entries are frozen and never re-enter the saved collection.
func (s *Store) PromoteToHistory(title string) {
	s.mu.Lock()
	i := s.findSavedLocked(title)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	ev := s.saved[i]
	s.saved = append(s.saved[:i], s.saved[i+1:]...)
	ev.Status = model.StatusAttended
	s.history = append(s.history, model.HistoryEvent{SavedEvent: ev})
	s.mu.Unlock()

	appLog.Info("event attended", "title", title)
	s.fireChange()
}

// RegisterCategory derives a slug id from label and appends a new
// registry entry. Labels whose slug collides with an existing id are
// silently ignored, as are labels that slug down to nothing.
func (s *Store) RegisterCategory(label string) {
	s.mu.Lock()
	added := s.registerCategoryLocked(label)
	s.mu.Unlock()
	if added {
		appLog.Info("category registered", "label", label)
	}
}

func (s *Store) registerCategoryLocked(label string) bool {
	id := Slug(label)
	if id == "" {
		return false
	}
	for _, c := range s.categories {
		if c.ID == id {
			return false
		}
	}
	s.categories = append(s.categories, model.Category{ID: id, Label: strings.TrimSpace(label)})
	return true
}

// MergeSnapshot appends the given collections onto the live state,
// entry by entry, with no deduplication against existing entries. The
// append-without-dedup semantics are deliberate; see Import in the
// snapshot package for the validation boundary.
func (s *Store) MergeSnapshot(saved []model.SavedEvent, history []model.HistoryEvent) {
	s.mu.Lock()
	for _, ev := range saved {
		s.saved = append(s.saved, ev.Clone())
	}
	for _, ev := range history {
		s.history = append(s.history, model.HistoryEvent{SavedEvent: ev.SavedEvent.Clone()})
	}
	s.mu.Unlock()

	appLog.Info("snapshot merged", "saved", len(saved), "history", len(history))
	s.fireChange()
}

// Saved returns a deep copy of the saved collection in insertion order.
func (s *Store) Saved() []model.SavedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SavedEvent, 0, len(s.saved))
	for _, ev := range s.saved {
		out = append(out, ev.Clone())
	}
	return out
}

// History returns a deep copy of the history collection.
func (s *Store) History() []model.HistoryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.HistoryEvent, 0, len(s.history))
	for _, ev := range s.history {
		out = append(out, model.HistoryEvent{SavedEvent: ev.SavedEvent.Clone()})
	}
	return out
}

// FindSaved looks up a saved event by title.
func (s *Store) FindSaved(title string) (model.SavedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.findSavedLocked(title); i >= 0 {
		return s.saved[i].Clone(), true
	}
	return model.SavedEvent{}, false
}

// Categories returns the registry in registration order.
func (s *Store) Categories() []model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Category(nil), s.categories...)
}

// mutate applies fn to the saved event with the given title and fires
// the change hook. Unknown titles are a silent no-op.
func (s *Store) mutate(title string, fn func(*model.SavedEvent)) {
	s.mu.Lock()
	i := s.findSavedLocked(title)
	if i < 0 {
		s.mu.Unlock()
		appLog.Debug("update skipped, title not saved", "title", title)
		return
	}
	fn(&s.saved[i])
	s.mu.Unlock()

	s.fireChange()
}

func (s *Store) findSavedLocked(title string) int {
	for i := range s.saved {
		if s.saved[i].Title == title {
			return i
		}
	}
	return -1
}

func (s *Store) fireChange() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Slug normalizes a category label into its registry id: trimmed,
// lowercased, internal whitespace runs collapsed to single hyphens.
func Slug(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "-")
}
