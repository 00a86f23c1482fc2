// Package poll re-runs discovery on a user-configured cadence. Each
// reconfiguration fully replaces the previous schedule; there is no
// drift correction or missed-tick catch-up, and a tick that would
// overlap a still-running discovery is skipped rather than queued.
package poll

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "agendad/internal/log"
)

// Scheduler wraps a cron runner holding at most one periodic entry.
type Scheduler struct {
	cron *cron.Cron
	task func()

	mu    sync.Mutex
	entry cron.EntryID
}

// New creates a started Scheduler with no schedule installed. task runs
// on each tick; at most one invocation is in flight at a time.
func New(task func()) *Scheduler {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{}),
		cron.Recover(cronLogger{}),
	))
	c.Start()
	return &Scheduler{cron: c, task: task}
}

// Configure replaces the current schedule. When enabled with minutes > 0
// a new periodic entry is installed; otherwise polling stops. The old
// entry is always removed first, so reconfiguring never stacks timers.
func (s *Scheduler) Configure(enabled bool, minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	if !enabled || minutes <= 0 {
		appLog.Info("polling disabled")
		return
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", minutes), s.task)
	if err != nil {
		// Only reachable with a malformed schedule string, which
		// the integer interval rules out.
		appLog.Error("failed to install poll schedule", err, "minutes", minutes)
		return
	}
	s.entry = id
	appLog.Info("polling enabled", "minutes", minutes)
}

// Active reports whether a periodic entry is currently installed.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry != 0
}

// Close stops the runner and waits for an in-flight tick to finish. No
// tick fires after Close returns.
func (s *Scheduler) Close() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts the cron library's logging to the app logger.
// Skipped-tick and recovery messages surface at debug/error level.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}
