package calendar

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/doyensec/safeurl"
)

// tzMarkerRe matches the non-standard calendar timezone marker most feed
// producers emit (e.g. "X-WR-TIMEZONE:Europe/Brussels").
var tzMarkerRe = regexp.MustCompile(`X-WR-TIMEZONE:(\S+)`)

// TimezoneSaver persists a timezone learned from the feed so later fetches
// don't need to re-derive it.
type TimezoneSaver interface {
	SaveTimezone(ctx context.Context, tz string) error
}

// Fetcher retrieves the configured ICS feed and produces the week's events.
// The exported fields are set once at construction; concurrent Fetch calls
// are safe.
type Fetcher struct {
	URL        string
	Timezone   string // explicit override; authoritative when set
	Span       Span
	HTTPClient *http.Client
	Config     TimezoneSaver // optional sink for the learned feed timezone

	mu      sync.Mutex
	learned string // timezone picked up from the feed marker
}

// NewHTTPClient returns an SSRF-hardened client suitable for fetching a
// user-configured feed URL. Private, loopback, and link-local addresses are
// rejected at dial time, which also covers DNS rebinding.
func NewHTTPClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

func (f *Fetcher) http() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

// Fetch retrieves the feed, resolves the timezone, and returns the events
// whose start falls inside the week window around ref, sorted ascending by
// start (stable, so source order breaks ties).
func (f *Fetcher) Fetch(ctx context.Context, ref time.Time) (*Week, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: f.URL, Err: err}
	}
	resp, err := f.http().Do(req)
	if err != nil {
		return nil, &FetchError{URL: f.URL, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: f.URL, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: f.URL, Err: err}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	loc := f.resolveTimezone(ctx, body)
	wr := ComputeWeekRange(ref, loc, f.Span)

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		parsed, ok := parseVEvent(ve)
		if !ok {
			continue
		}
		events = append(events, parsed.occurrencesWithin(wr)...)
	}

	kept := make([]Event, 0, len(events))
	for _, ev := range events {
		if wr.Contains(ev.Start) {
			kept = append(kept, ev)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start.Before(kept[j].Start) })

	slog.Debug("calendar fetched",
		slog.Time("week_start", wr.Start),
		slog.Int("events", len(kept)))
	return &Week{Range: wr, Location: loc, Events: kept}, nil
}

// resolveTimezone prefers the configured timezone, then one already
// learned from the feed; otherwise it learns the feed's marker and
// persists it for subsequent fetches. UTC is the last resort when nothing
// resolves.
func (f *Fetcher) resolveTimezone(ctx context.Context, body []byte) *time.Location {
	if f.Timezone != "" {
		if loc, err := time.LoadLocation(f.Timezone); err == nil {
			return loc
		}
		slog.Warn("configured timezone invalid, deriving from feed", slog.String("tz", f.Timezone))
	}

	f.mu.Lock()
	learned := f.learned
	f.mu.Unlock()
	if learned != "" {
		if loc, err := time.LoadLocation(learned); err == nil {
			return loc
		}
	}

	if m := tzMarkerRe.FindSubmatch(body); m != nil {
		name := string(m[1])
		loc, err := time.LoadLocation(name)
		if err != nil {
			slog.Warn("feed timezone marker invalid", slog.String("tz", name), slog.Any("err", err))
			return time.UTC
		}
		if f.Config != nil {
			if err := f.Config.SaveTimezone(ctx, name); err != nil {
				slog.Warn("failed to persist learned timezone", slog.Any("err", err))
			}
		}
		f.mu.Lock()
		f.learned = name
		f.mu.Unlock()
		return loc
	}
	return time.UTC
}

type parsedVEvent struct {
	event    Event
	rawRRule string
	exDates  []time.Time
}

// parseVEvent extracts one VEVENT. Malformed entries (missing UID or start)
// report ok=false and are skipped so the rest of the feed still parses.
func parseVEvent(ve *ical.VEvent) (parsedVEvent, bool) {
	var out parsedVEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		slog.Warn("skipping calendar entry without UID")
		return out, false
	}
	out.event.UID = uid.Value
	out.event.Kind = KindEvent

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.event.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.event.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.event.Location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		slog.Warn("skipping calendar entry with unparsable start", slog.String("uid", out.event.UID), slog.Any("err", err))
		return out, false
	}
	out.event.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		out.event.End = end
	} else {
		out.event.End = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		out.exDates = append(out.exDates, parseExDates(p.Value)...)
	}
	return out, true
}
