package poll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func timeoutC(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(5 * time.Second)
}

func TestConfigureReplacesSchedule(t *testing.T) {
	s := New(func() {})
	defer s.Close()

	assert.False(t, s.Active())

	s.Configure(true, 15)
	assert.True(t, s.Active())

	// Reconfiguring replaces the entry rather than stacking a second.
	first := s.entry
	s.Configure(true, 30)
	assert.True(t, s.Active())
	assert.NotEqual(t, first, s.entry)
	assert.Len(t, s.cron.Entries(), 1)

	s.Configure(false, 30)
	assert.False(t, s.Active())
	assert.Empty(t, s.cron.Entries())
}

func TestConfigureRejectsNonPositiveInterval(t *testing.T) {
	s := New(func() {})
	defer s.Close()

	s.Configure(true, 0)
	assert.False(t, s.Active())

	s.Configure(true, -5)
	assert.False(t, s.Active())

	// Enabled flag alone is not enough; disabling wins regardless of interval.
	s.Configure(false, 10)
	assert.False(t, s.Active())
}

func TestCloseWaitsForRunner(t *testing.T) {
	s := New(func() {})
	s.Configure(true, 1)
	// Close must return promptly when no tick is in flight.
	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-timeoutC(t):
		t.Fatal("Close did not return")
	}
}
