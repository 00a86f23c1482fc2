package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"agendad/internal/model"
)

// eventRecord is the persisted shape of a saved or history event. The
// reminder field is a lead time in milliseconds, or null when no
// reminder is set.
type eventRecord struct {
	Title       string   `json:"title"`
	DateText    string   `json:"date_text"`
	Location    string   `json:"location"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	SourceText  string   `json:"source_text"`
	Notes       string   `json:"notes"`
	Status      string   `json:"status"`
	Contacts    []string `json:"contacts"`
	ReminderMs  *int64   `json:"reminder"`
}

// document is the top-level snapshot structure.
type document struct {
	Saved   []eventRecord `json:"saved"`
	History []eventRecord `json:"history"`
}

func toRecord(ev model.SavedEvent) eventRecord {
	rec := eventRecord{
		Title:       ev.Title,
		DateText:    ev.DateText,
		Location:    ev.Location,
		Category:    ev.Category,
		Description: ev.Description,
		SourceText:  ev.SourceText,
		Notes:       ev.Notes,
		Status:      string(ev.Status),
		Contacts:    ev.Contacts,
	}
	if rec.Contacts == nil {
		rec.Contacts = []string{}
	}
	if ev.ReminderLead != nil {
		ms := ev.ReminderLead.Milliseconds()
		rec.ReminderMs = &ms
	}
	return rec
}

func fromRecord(rec eventRecord) model.SavedEvent {
	ev := model.SavedEvent{
		CandidateEvent: model.CandidateEvent{
			Title:       rec.Title,
			DateText:    rec.DateText,
			Location:    rec.Location,
			Category:    rec.Category,
			Description: rec.Description,
			SourceText:  rec.SourceText,
		},
		Notes:    rec.Notes,
		Status:   model.ParseStatus(rec.Status),
		Contacts: rec.Contacts,
	}
	if ev.Contacts == nil {
		ev.Contacts = []string{}
	}
	if rec.ReminderMs != nil && *rec.ReminderMs >= 0 {
		lead := time.Duration(*rec.ReminderMs) * time.Millisecond
		ev.ReminderLead = &lead
	}
	return ev
}

// Encode serializes the two collections into the snapshot document.
func Encode(saved []model.SavedEvent, history []model.HistoryEvent) ([]byte, error) {
	doc := document{
		Saved:   make([]eventRecord, 0, len(saved)),
		History: make([]eventRecord, 0, len(history)),
	}
	for _, ev := range saved {
		doc.Saved = append(doc.Saved, toRecord(ev))
	}
	for _, ev := range history {
		doc.History = append(doc.History, toRecord(ev.SavedEvent))
	}
	return json.MarshalIndent(&doc, "", "  ")
}

// Decode parses a snapshot document. The only validation performed is
// that the text is parseable; nothing is checked against live state.
func Decode(data []byte) ([]model.SavedEvent, []model.HistoryEvent, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("malformed snapshot: %w", err)
	}

	saved := make([]model.SavedEvent, 0, len(doc.Saved))
	for _, rec := range doc.Saved {
		saved = append(saved, fromRecord(rec))
	}
	history := make([]model.HistoryEvent, 0, len(doc.History))
	for _, rec := range doc.History {
		ev := fromRecord(rec)
		ev.Status = model.StatusAttended
		history = append(history, model.HistoryEvent{SavedEvent: ev})
	}
	return saved, history, nil
}
