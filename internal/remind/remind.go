// Package remind keeps one pending timer per saved event whose reminder
// lead time and parsable date put its fire-time in the future, and zero
// timers for everything else. Rather than diffing, it rebuilds the whole
// timer set on every store change: the agenda is small and a full
// rebuild can never leave a stale timer behind.
package remind

import (
	"fmt"
	"sync"
	"time"

	"agendad/internal/agenda"
	"agendad/internal/dateparse"
	appLog "agendad/internal/log"
)

// Notifier delivers a reminder to the user. The scheduler does not care
// whether that is a system notification, a message broker, or a log line.
type Notifier func(message string)

// Scheduler owns the live reminder timers. It registers itself as the
// store's change hook, so every save/update/remove/promote triggers a
// recompute.
type Scheduler struct {
	store  *agenda.Store
	notify Notifier

	mu     sync.Mutex
	now    func() time.Time
	// timers is keyed by arm id, not title: an imported snapshot can
	// append a second event with the same title, and each eligible
	// event keeps its own stoppable timer.
	timers map[uint64]armedTimer
	nextID uint64
	gen    uint64 // bumped on every recompute; stale fires check it
	closed bool
}

type armedTimer struct {
	title string
	timer *time.Timer
}

// New constructs a Scheduler, wires it to the store's change hook, and
// performs the initial recompute.
func New(store *agenda.Store, notify Notifier) *Scheduler {
	s := &Scheduler{
		store:  store,
		notify: notify,
		now:    time.Now,
		timers: make(map[uint64]armedTimer),
	}
	store.SetOnChange(s.Recompute)
	s.Recompute()
	return s
}

// Recompute cancels every armed timer and re-arms from current store
// state: one timer per saved event with a lead time, a parsable date,
// and a fire-time strictly in the future. Past-due fire-times are not
// backfilled.
func (s *Scheduler) Recompute() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()
	if s.closed {
		return
	}

	loc := s.store.Location()
	now := s.now()
	for _, ev := range s.store.Saved() {
		if ev.ReminderLead == nil {
			continue
		}
		date, ok := dateparse.Parse(ev.DateText, loc)
		if !ok {
			appLog.Debug("reminder skipped, unparsable date", "title", ev.Title, "date", ev.DateText)
			continue
		}
		fireAt := date.Add(-*ev.ReminderLead)
		delay := fireAt.Sub(now)
		if delay <= 0 {
			continue
		}

		gen := s.gen
		id := s.nextID
		s.nextID++
		title := ev.Title
		dateText := ev.DateText
		s.timers[id] = armedTimer{title: title, timer: time.AfterFunc(delay, func() {
			s.fired(gen, id, title, dateText)
		})}
		appLog.Debug("reminder armed", "title", title, "fire_at", fireAt.Format(time.RFC3339))
	}
}

// Close cancels all timers and prevents any further arming. It is
// idempotent; a timer that already fired but has not run its callback
// yet fails the generation check and never reaches the notifier.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.disarmLocked()
}

// Armed returns the titles with a pending timer, for inspection. A
// title with several eligible events appears once per timer.
func (s *Scheduler) Armed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	titles := make([]string, 0, len(s.timers))
	for _, at := range s.timers {
		titles = append(titles, at.title)
	}
	return titles
}

// disarmLocked stops everything and bumps the generation so that timers
// that already fired but have not run their callback yet are ignored.
func (s *Scheduler) disarmLocked() {
	s.gen++
	for id, at := range s.timers {
		at.timer.Stop()
		delete(s.timers, id)
	}
}

// fired runs on the timer goroutine. A timer from an old generation, or
// one whose event no longer exists with a lead time set, is dropped
// without notifying.
func (s *Scheduler) fired(gen, id uint64, title, dateText string) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	notify := s.notify
	s.mu.Unlock()

	if ev, ok := s.store.FindSaved(title); !ok || ev.ReminderLead == nil {
		return
	}

	appLog.Info("reminder fired", "title", title, "date", dateText)
	if notify != nil {
		notify(fmt.Sprintf("Reminder: %s (%s)", title, dateText))
	}
}
