package remind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agendad/internal/agenda"
	"agendad/internal/dateparse"
	"agendad/internal/model"
)

func newTestScheduler(t *testing.T) (*agenda.Store, *Scheduler, chan string) {
	t.Helper()
	store := agenda.New(time.UTC)
	notifications := make(chan string, 8)
	s := New(store, func(msg string) { notifications <- msg })
	t.Cleanup(s.Close)
	return store, s, notifications
}

// futureEvent returns a candidate dated two days out and the lead time
// that puts its fire-time the given distance from now.
func futureEvent(title string, untilFire time.Duration) (model.CandidateEvent, time.Duration) {
	date := time.Now().UTC().AddDate(0, 0, 2)
	c := model.CandidateEvent{Title: title, DateText: dateparse.Format(date)}
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	lead := time.Until(midnight) - untilFire
	return c, lead
}

func TestArmedSetTracksStore(t *testing.T) {
	store, s, _ := newTestScheduler(t)

	// Saved without a lead time: no timer.
	c, lead := futureEvent("Beach Party", time.Hour)
	store.Save(c)
	assert.Empty(t, s.Armed())

	// Lead set, date parsable, fire-time in the future: one timer.
	store.SetReminderLead("Beach Party", &lead)
	assert.Equal(t, []string{"Beach Party"}, s.Armed())

	// Unparsable date: no timer even with a lead.
	store.Save(model.CandidateEvent{Title: "Mystery", DateText: "sometime soon"})
	hour := time.Hour
	store.SetReminderLead("Mystery", &hour)
	assert.Equal(t, []string{"Beach Party"}, s.Armed())

	// Past-due fire-time: not armed, no backfill.
	store.Save(model.CandidateEvent{Title: "Yesterday", DateText: dateparse.Format(time.Now().UTC().AddDate(0, 0, -1))})
	store.SetReminderLead("Yesterday", &hour)
	assert.Equal(t, []string{"Beach Party"}, s.Armed())

	// Removing the event disarms it.
	store.Remove("Beach Party")
	assert.Empty(t, s.Armed())
}

func TestPromoteDisarms(t *testing.T) {
	store, s, notifications := newTestScheduler(t)

	c, lead := futureEvent("Beach Party", 60*time.Millisecond)
	store.Save(c)
	store.SetReminderLead("Beach Party", &lead)
	require.Equal(t, []string{"Beach Party"}, s.Armed())

	store.PromoteToHistory("Beach Party")
	assert.Empty(t, s.Armed())

	select {
	case msg := <-notifications:
		t.Fatalf("reminder fired after promote: %q", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestReminderFires(t *testing.T) {
	store, _, notifications := newTestScheduler(t)

	c, lead := futureEvent("Beach Party", 50*time.Millisecond)
	store.Save(c)
	store.SetReminderLead("Beach Party", &lead)

	select {
	case msg := <-notifications:
		assert.Contains(t, msg, "Beach Party")
		assert.Contains(t, msg, c.DateText)
	case <-time.After(2 * time.Second):
		t.Fatal("reminder did not fire")
	}
}

func TestDuplicateTitlesArmSeparately(t *testing.T) {
	store, s, notifications := newTestScheduler(t)

	c, lead := futureEvent("Beach Party", 60*time.Millisecond)
	store.Save(c)
	store.SetReminderLead("Beach Party", &lead)

	// Importing a snapshot appends without dedup, so a second saved
	// event with the same title is possible. Each one gets its own
	// timer; neither shadows the other.
	dup := model.SavedEvent{CandidateEvent: c, ReminderLead: &lead}
	store.MergeSnapshot([]model.SavedEvent{dup}, nil)
	assert.Equal(t, []string{"Beach Party", "Beach Party"}, s.Armed())

	// Close must stop both, including the one armed second.
	s.Close()
	assert.Empty(t, s.Armed())

	select {
	case msg := <-notifications:
		t.Fatalf("reminder fired after close: %q", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestClearingLeadDisarms(t *testing.T) {
	store, s, _ := newTestScheduler(t)

	c, lead := futureEvent("Beach Party", time.Hour)
	store.Save(c)
	store.SetReminderLead("Beach Party", &lead)
	require.Len(t, s.Armed(), 1)

	store.SetReminderLead("Beach Party", nil)
	assert.Empty(t, s.Armed())
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	store, s, notifications := newTestScheduler(t)

	c, lead := futureEvent("Beach Party", 50*time.Millisecond)
	store.Save(c)
	store.SetReminderLead("Beach Party", &lead)

	s.Close()
	s.Close()
	assert.Empty(t, s.Armed())

	// Mutations after Close must not re-arm anything.
	c2, lead2 := futureEvent("Regatta", 50*time.Millisecond)
	store.Save(c2)
	store.SetReminderLead("Regatta", &lead2)
	assert.Empty(t, s.Armed())

	select {
	case msg := <-notifications:
		t.Fatalf("reminder fired after close: %q", msg)
	case <-time.After(300 * time.Millisecond):
	}
}
