package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const weeklyFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//lemonbot//test//EN
X-WR-TIMEZONE:Europe/Brussels
BEGIN:VEVENT
UID:tuesday-stream
SUMMARY:Cozy Games
DESCRIPTION:Chill evening stream
LOCATION:Twitch
DTSTART:20260303T180000Z
DTEND:20260303T200000Z
END:VEVENT
BEGIN:VEVENT
UID:thursday-hangout
SUMMARY:Community Hangout
LOCATION:Discord
DTSTART:20260305T190000Z
DTEND:20260305T210000Z
END:VEVENT
BEGIN:VEVENT
UID:next-week
SUMMARY:Out of range
LOCATION:Twitch
DTSTART:20260310T180000Z
DTEND:20260310T200000Z
END:VEVENT
END:VCALENDAR
`

type tzRecorder struct {
	mu    sync.Mutex
	saved string
}

func (r *tzRecorder) SaveTimezone(_ context.Context, tz string) error {
	r.mu.Lock()
	r.saved = tz
	r.mu.Unlock()
	return nil
}

func (r *tzRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved
}

func feedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcherFiltersAndSortsWeekEvents(t *testing.T) {
	srv := feedServer(t, http.StatusOK, weeklyFeed)
	rec := &tzRecorder{}
	f := &Fetcher{URL: srv.URL, Span: SpanWorkweek, Config: rec}

	week, err := f.Fetch(context.Background(), time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if got := week.Location.String(); got != "Europe/Brussels" {
		t.Errorf("location = %s, want Europe/Brussels", got)
	}
	if got := rec.last(); got != "Europe/Brussels" {
		t.Errorf("learned timezone not persisted, got %q", got)
	}
	if len(week.Events) != 2 {
		t.Fatalf("events = %d, want 2 (next-week filtered out)", len(week.Events))
	}
	if week.Events[0].UID != "tuesday-stream" || week.Events[1].UID != "thursday-hangout" {
		t.Errorf("events out of order: %s, %s", week.Events[0].UID, week.Events[1].UID)
	}
	if week.Events[0].Summary != "Cozy Games" || week.Events[0].Location != "Twitch" {
		t.Errorf("event fields not carried over: %+v", week.Events[0])
	}
}

func TestFetcherExplicitTimezoneWins(t *testing.T) {
	srv := feedServer(t, http.StatusOK, weeklyFeed)
	rec := &tzRecorder{}
	f := &Fetcher{URL: srv.URL, Timezone: "UTC", Span: SpanWorkweek, Config: rec}

	week, err := f.Fetch(context.Background(), time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if week.Location != time.UTC {
		t.Errorf("location = %v, want UTC", week.Location)
	}
	if got := rec.last(); got != "" {
		t.Errorf("configured timezone should not trigger learning, saved %q", got)
	}
}

func TestFetcherConcurrentFetches(t *testing.T) {
	srv := feedServer(t, http.StatusOK, weeklyFeed)
	rec := &tzRecorder{}
	f := &Fetcher{URL: srv.URL, Span: SpanWorkweek, Config: rec}
	ref := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	const fetchers = 4
	var wg sync.WaitGroup
	errs := make([]error, fetchers)
	locs := make([]string, fetchers)
	for i := range fetchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			week, err := f.Fetch(context.Background(), ref)
			errs[i] = err
			if err == nil {
				locs[i] = week.Location.String()
			}
		}()
	}
	wg.Wait()

	for i := range fetchers {
		if errs[i] != nil {
			t.Fatalf("fetch %d: %v", i, errs[i])
		}
		if locs[i] != "Europe/Brussels" {
			t.Errorf("fetch %d location = %s", i, locs[i])
		}
	}
	if got := rec.last(); got != "Europe/Brussels" {
		t.Errorf("learned timezone = %q", got)
	}
}

func TestFetcherNonSuccessStatus(t *testing.T) {
	srv := feedServer(t, http.StatusBadGateway, "upstream broke")
	f := &Fetcher{URL: srv.URL, Span: SpanWorkweek}

	_, err := f.Fetch(context.Background(), time.Now())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", fe.Status)
	}
}

func TestFetcherUnparsableDocument(t *testing.T) {
	srv := feedServer(t, http.StatusOK, "this is not a calendar")
	f := &Fetcher{URL: srv.URL, Span: SpanWorkweek}

	_, err := f.Fetch(context.Background(), time.Now())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
}

func TestFetcherExpandsWeeklyRecurrence(t *testing.T) {
	const recurringFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//lemonbot//test//EN
X-WR-TIMEZONE:UTC
BEGIN:VEVENT
UID:weekly-show
SUMMARY:Weekly Show
LOCATION:Twitch
DTSTART:20260203T180000Z
DTEND:20260203T193000Z
RRULE:FREQ=WEEKLY;BYDAY=TU
END:VEVENT
END:VCALENDAR
`
	srv := feedServer(t, http.StatusOK, recurringFeed)
	f := &Fetcher{URL: srv.URL, Span: SpanWorkweek}

	week, err := f.Fetch(context.Background(), time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(week.Events) != 1 {
		t.Fatalf("events = %d, want exactly one expanded occurrence", len(week.Events))
	}
	ev := week.Events[0]
	want := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)
	if !ev.Start.Equal(want) {
		t.Errorf("occurrence start = %v, want %v", ev.Start, want)
	}
	if got := ev.End.Sub(ev.Start); got != 90*time.Minute {
		t.Errorf("occurrence duration = %v, want 90m", got)
	}
}
