package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:party@test\r\n" +
	"SUMMARY:Beach Party\r\n" +
	"DESCRIPTION:Sunset party\r\n" +
	"LOCATION:Grace Bay\r\n" +
	"DTSTART;VALUE=DATE:20250712\r\n" +
	"DTEND;VALUE=DATE:20250713\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:yoga@test\r\n" +
	"SUMMARY:Weekly Yoga\r\n" +
	"DTSTART:20250701T170000Z\r\n" +
	"DTEND:20250701T180000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=10\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseFeed(t *testing.T) {
	src := Source{ID: "test", Category: "social"}
	events, err := parseFeed(src, []byte(sampleICS))
	require.NoError(t, err)
	require.Len(t, events, 2)

	party := events[0]
	assert.Equal(t, "Beach Party", party.Summary)
	assert.Equal(t, "Grace Bay", party.Location)
	assert.True(t, party.AllDay)
	assert.Empty(t, party.RawRRule)

	yoga := events[1]
	assert.Equal(t, "Weekly Yoga", yoga.Summary)
	assert.False(t, yoga.AllDay)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=10", yoga.RawRRule)
}

func TestParseFeedRejectsGarbage(t *testing.T) {
	_, err := parseFeed(Source{ID: "test"}, nil)
	assert.Error(t, err)
}

func TestExpandWindow(t *testing.T) {
	src := Source{ID: "test", Category: "social"}
	events, err := parseFeed(src, []byte(sampleICS))
	require.NoError(t, err)

	rangeStart := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	candidates := expandWindow(events, rangeStart, rangeEnd, time.UTC)

	// One all-day event plus five weekly occurrences in July.
	require.Len(t, candidates, 6)

	party := candidates[0]
	assert.Equal(t, "Beach Party", party.Title)
	// All-day DTEND is exclusive, so a one-day event is a single date.
	assert.Equal(t, "12/07/2025", party.DateText)
	assert.Equal(t, "social", party.Category)
	assert.Equal(t, "test", party.SourceText)

	var yogaDates []string
	for _, c := range candidates[1:] {
		assert.Equal(t, "Weekly Yoga", c.Title)
		yogaDates = append(yogaDates, c.DateText)
	}
	assert.Equal(t, []string{"01/07/2025", "08/07/2025", "15/07/2025", "22/07/2025", "29/07/2025"}, yogaDates)
}

// futureICS renders a single-event calendar dated days from now, so
// discovery windows anchored at the current time can see it.
func futureICS(days int) string {
	date := time.Now().UTC().AddDate(0, 0, days).Format("20060102")
	return "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:fish@test\r\n" +
		"SUMMARY:Fish Fry\r\n" +
		fmt.Sprintf("DTSTART;VALUE=DATE:%s\r\n", date) +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
}

func TestDiscoverFromServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(futureICS(10)))
	}))
	defer ts.Close()

	d := New(Options{
		Sources:  []Source{{ID: "local", URL: ts.URL, Category: "community"}},
		CacheDir: t.TempDir(),
		Location: time.UTC,
	})

	candidates := d.Discover(context.Background(), "")
	require.Len(t, candidates, 1)
	assert.Equal(t, "Fish Fry", candidates[0].Title)
	assert.Equal(t, "community", candidates[0].Category)

	// Category filter keeps only matching candidates, with no sentinel.
	assert.Len(t, d.Discover(context.Background(), "community"), 1)
	assert.Empty(t, d.Discover(context.Background(), "social"))

	// Last reflects the most recent round.
	last, failures, at := d.Last()
	assert.Empty(t, last)
	assert.Zero(t, failures)
	assert.False(t, at.IsZero())
}

func TestTryDiscoverSkipsOverlappingRound(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		_, _ = w.Write([]byte(futureICS(10)))
	}))
	defer ts.Close()

	d := New(Options{
		Sources:  []Source{{ID: "slow", URL: ts.URL, Category: "community"}},
		CacheDir: t.TempDir(),
		Location: time.UTC,
	})

	done := make(chan bool, 1)
	go func() {
		_, _, ok := d.TryDiscover(context.Background(), "")
		done <- ok
	}()
	<-entered
	assert.True(t, d.Busy())

	// A second round while one is in flight is skipped, not queued.
	skipped, _, ok := d.TryDiscover(context.Background(), "")
	assert.False(t, ok)
	assert.Nil(t, skipped)

	close(release)
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("discovery round did not finish")
	}
	assert.False(t, d.Busy())
}

func TestDiscoverPartialFailureKeepsCandidates(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(futureICS(10)))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	d := New(Options{
		Sources: []Source{
			{ID: "good", URL: good.URL, Category: "community"},
			{ID: "bad", URL: bad.URL, Category: "social"},
		},
		CacheDir: t.TempDir(),
		Location: time.UTC,
	})

	// One source down: the surviving candidates come through with no
	// sentinel, and the failure count reports the outage.
	candidates, failures, ok := d.TryDiscover(context.Background(), "")
	require.True(t, ok)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Fish Fry", candidates[0].Title)
	assert.Equal(t, 1, failures)

	_, lastFailures, _ := d.Last()
	assert.Equal(t, 1, lastFailures)
}

func TestDiscoverAllSourcesFailedYieldsSentinel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	d := New(Options{
		Sources:  []Source{{ID: "broken", URL: ts.URL, Category: "social"}},
		CacheDir: t.TempDir(),
		Location: time.UTC,
	})

	candidates := d.Discover(context.Background(), "")
	require.Len(t, candidates, 1)
	assert.Equal(t, ErrorCategory, candidates[0].Category)
	assert.True(t, strings.Contains(candidates[0].Description, "discovery source"))
}

func TestDiscoverNoSources(t *testing.T) {
	d := New(Options{CacheDir: t.TempDir(), Location: time.UTC})
	assert.Empty(t, d.Discover(context.Background(), ""))
}

func TestFetcherUsesCacheOn304(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer ts.Close()

	f := newFetcher(t.TempDir())
	src := Source{ID: "test", URL: ts.URL}

	body1, err := f.fetch(context.Background(), src)
	require.NoError(t, err)
	body2, err := f.fetch(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, body1, body2)
	assert.Equal(t, 2, calls)
}
