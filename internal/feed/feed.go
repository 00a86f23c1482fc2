// Package feed implements the discovery collaborator: it pulls
// candidate events out of subscribed ICS feeds. Failures never cross
// the package boundary as errors; a failed round yields a single
// sentinel candidate in the "error" category instead.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"agendad/internal/dateparse"
	appLog "agendad/internal/log"
	"agendad/internal/model"
)

// ErrorCategory marks the sentinel candidate produced by a failed
// discovery round.
const ErrorCategory = "error"

// Discoverer fetches, parses, and expands feed events into candidates.
// At most one discovery round runs at a time; TryDiscover reports when
// a round was skipped because another is in flight.
type Discoverer struct {
	sources []Source
	fetcher *fetcher
	loc     *time.Location
	horizon time.Duration
	busy    atomic.Bool
	now     func() time.Time

	// Last completed round. Candidates are ephemeral; each round fully
	// replaces the previous one.
	lastMu       sync.Mutex
	last         []model.CandidateEvent
	lastFailures int
	lastAt       time.Time
}

// Options configures a Discoverer.
type Options struct {
	Sources     []Source
	CacheDir    string
	Location    *time.Location
	HorizonDays int
}

// New creates a Discoverer.
func New(opts Options) *Discoverer {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	days := opts.HorizonDays
	if days <= 0 {
		days = 60
	}
	return &Discoverer{
		sources: opts.Sources,
		fetcher: newFetcher(opts.CacheDir),
		loc:     loc,
		horizon: time.Duration(days) * 24 * time.Hour,
		now:     time.Now,
	}
}

// Busy reports whether a discovery round is currently in flight.
func (d *Discoverer) Busy() bool {
	return d.busy.Load()
}

// TryDiscover runs a discovery round unless one is already in flight,
// in which case it returns ok=false and does nothing. This is the
// entry point poll ticks use: an overlapping tick is skipped, not
// queued. failures counts the sources that could not be fetched or
// parsed this round, so a partial outage stays visible to callers.
func (d *Discoverer) TryDiscover(ctx context.Context, category string) (out []model.CandidateEvent, failures int, ok bool) {
	if !d.busy.CompareAndSwap(false, true) {
		appLog.Info("discovery skipped, another round in flight")
		return nil, 0, false
	}
	defer d.busy.Store(false)

	out, failures = d.discover(ctx, category)
	d.lastMu.Lock()
	d.last = out
	d.lastFailures = failures
	d.lastAt = d.now()
	d.lastMu.Unlock()
	return out, failures, true
}

// Last returns the candidates of the most recent completed round, its
// failed-source count, and when it finished; the time is zero when no
// round has run yet.
func (d *Discoverer) Last() ([]model.CandidateEvent, int, time.Time) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	return append([]model.CandidateEvent(nil), d.last...), d.lastFailures, d.lastAt
}

// Discover runs a discovery round, or returns nil when one is already
// in flight. Candidates are filtered to the given category when it is
// non-empty; an empty category returns everything.
func (d *Discoverer) Discover(ctx context.Context, category string) []model.CandidateEvent {
	if out, _, ok := d.TryDiscover(ctx, category); ok {
		return out
	}
	return nil
}

func (d *Discoverer) discover(ctx context.Context, category string) ([]model.CandidateEvent, int) {
	now := d.now().In(d.loc)
	rangeStart := now.AddDate(0, 0, -1)
	rangeEnd := now.Add(d.horizon)

	appLog.Info("discovery round start",
		"sources", len(d.sources),
		"category", category,
		"range_start", dateparse.Format(rangeStart),
		"range_end", dateparse.Format(rangeEnd),
	)

	candidates := make([]model.CandidateEvent, 0)
	failures := 0

	for _, src := range d.sources {
		body, err := d.fetcher.fetch(ctx, src)
		if err != nil {
			appLog.Error("feed fetch failed", err, "id", src.ID)
			failures++
			continue
		}
		events, err := parseFeed(src, body)
		if err != nil {
			appLog.Error("feed parse failed", err, "id", src.ID)
			failures++
			continue
		}
		candidates = append(candidates, expandWindow(events, rangeStart, rangeEnd, d.loc)...)
	}

	if category != "" {
		filtered := candidates[:0]
		for _, c := range candidates {
			if c.Category == category {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	// A round where every source failed surfaces as one sentinel
	// candidate rather than an error. Partial outages return the
	// candidates that did come through, plus the failure count.
	if failures > 0 && failures == len(d.sources) {
		return []model.CandidateEvent{sentinel(now)}, failures
	}

	appLog.Info("discovery round done", "candidates", len(candidates), "failed_sources", failures)
	return candidates, failures
}

func sentinel(now time.Time) model.CandidateEvent {
	return model.CandidateEvent{
		Title:       "Discovery failed",
		DateText:    dateparse.Format(now),
		Category:    ErrorCategory,
		Description: "No discovery source could be reached. Check the feed configuration and network, then search again.",
		SourceText:  "agendad",
	}
}
