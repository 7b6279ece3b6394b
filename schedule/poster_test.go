package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lemonops/lemonbot/calendar"
)

type fakeCalendar struct {
	week *calendar.Week
	err  error
}

func (f *fakeCalendar) Fetch(context.Context, time.Time) (*calendar.Week, error) {
	return f.week, f.err
}

type fakeRenderer struct {
	calls [][]calendar.Event
	err   error
}

func (f *fakeRenderer) Render(_ calendar.WeekRange, events []calendar.Event) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, events)
	return fmt.Appendf(nil, "png-%d", len(f.calls)), nil
}

type fakeSyndicator struct {
	text string
	png  []byte
	alt  string
	err  error
}

func (f *fakeSyndicator) PostImage(_ context.Context, text string, png []byte, alt string) error {
	if f.err != nil {
		return f.err
	}
	f.text, f.png, f.alt = text, png, alt
	return nil
}

func boolPtr(b bool) *bool { return &b }

func weekFixture(now time.Time) *calendar.Week {
	wr := calendar.ComputeWeekRange(now, time.UTC, calendar.SpanFullWeek)
	return &calendar.Week{
		Range:    wr,
		Location: time.UTC,
		Events: []calendar.Event{
			{UID: "t", Kind: calendar.KindEvent, Summary: "Cozy Games",
				Location: calendar.LocationTwitch, Start: now.Add(24 * time.Hour), End: now.Add(25 * time.Hour)},
			{UID: "d", Kind: calendar.KindEvent, Summary: "Movie Night",
				Location: calendar.LocationDiscord, Start: now.Add(48 * time.Hour), End: now.Add(50 * time.Hour)},
		},
	}
}

func TestPostReturnsArtifactsWithAllTargetsDisabled(t *testing.T) {
	now := time.Now()
	cal := &fakeCalendar{week: weekFixture(now)}
	rend := &fakeRenderer{}
	sky := &fakeSyndicator{}
	helix := &fakeHelix{}

	p := &Poster{
		Calendar:   cal,
		Renderer:   rend,
		Bluesky:    sky,
		Reconciler: &Reconciler{Helix: helix, BroadcasterID: "bid", Policies: staticPolicy{}},
		Policies:   staticPolicy{},
	}

	res, err := p.Post(context.Background(), now, Options{})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(res.Image) == 0 {
		t.Error("result image empty")
	}
	if res.Week == nil || len(res.Week.Events) != 2 {
		t.Error("result week missing events")
	}
	if sky.png != nil {
		t.Error("bluesky posted despite disabled flag")
	}
	if len(helix.created)+len(helix.deleted) != 0 {
		t.Error("twitch touched despite disabled flag")
	}
}

func TestPostPerCallOverrideForcesSyndication(t *testing.T) {
	now := time.Now()
	sky := &fakeSyndicator{}
	p := &Poster{
		Calendar: &fakeCalendar{week: weekFixture(now)},
		Renderer: &fakeRenderer{},
		Bluesky:  sky,
		Policies: staticPolicy{BlueskyEnabled: false},
	}

	if _, err := p.Post(context.Background(), now, Options{Bluesky: boolPtr(true)}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if sky.png == nil {
		t.Fatal("override should force the bluesky post")
	}
	if sky.text == "" || sky.alt == "" {
		t.Error("post text and alt text should be populated")
	}
}

func TestPostSyndicatesFilteredRender(t *testing.T) {
	now := time.Now()
	rend := &fakeRenderer{}
	sky := &fakeSyndicator{}
	p := &Poster{
		Calendar: &fakeCalendar{week: weekFixture(now)},
		Renderer: rend,
		Bluesky:  sky,
		Policies: staticPolicy{
			BlueskyEnabled:   true,
			BlueskyLocations: []string{calendar.LocationTwitch},
		},
	}

	if _, err := p.Post(context.Background(), now, Options{}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(rend.calls) != 2 {
		t.Fatalf("renderer called %d times, want 2 (full + filtered)", len(rend.calls))
	}
	if len(rend.calls[1]) != 1 || rend.calls[1][0].Location != calendar.LocationTwitch {
		t.Errorf("filtered render got %v, want only the twitch event", rend.calls[1])
	}
	if string(sky.png) != "png-2" {
		t.Errorf("bluesky got %q, want the filtered render", sky.png)
	}
	if strings.Contains(sky.alt, "Movie Night") {
		t.Errorf("alt text leaks filtered event: %q", sky.alt)
	}
	if !strings.Contains(sky.alt, "Cozy Games") {
		t.Errorf("alt text missing kept event: %q", sky.alt)
	}
}

func TestPostRunsReconciliationWhenEnabled(t *testing.T) {
	now := time.Now()
	helix := &fakeHelix{}
	p := &Poster{
		Calendar:   &fakeCalendar{week: weekFixture(now)},
		Renderer:   &fakeRenderer{},
		Reconciler: &Reconciler{Helix: helix, BroadcasterID: "bid", Policies: staticPolicy{}},
		Policies:   staticPolicy{TwitchEnabled: true},
	}

	if _, err := p.Post(context.Background(), now, Options{}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(helix.created) != 1 {
		t.Errorf("created %d segments, want 1 (only the twitch event)", len(helix.created))
	}
}

func TestPostFetchFailureStopsPipeline(t *testing.T) {
	rend := &fakeRenderer{}
	p := &Poster{
		Calendar: &fakeCalendar{err: errors.New("feed down")},
		Renderer: rend,
		Policies: staticPolicy{},
	}

	if _, err := p.Post(context.Background(), time.Now(), Options{}); err == nil {
		t.Fatal("Post should fail when the fetch fails")
	}
	if len(rend.calls) != 0 {
		t.Error("renderer ran despite failed fetch")
	}
}

func TestPostPropagatesSyndicationError(t *testing.T) {
	now := time.Now()
	p := &Poster{
		Calendar: &fakeCalendar{week: weekFixture(now)},
		Renderer: &fakeRenderer{},
		Bluesky:  &fakeSyndicator{err: errors.New("pds down")},
		Policies: staticPolicy{BlueskyEnabled: true},
	}

	if _, err := p.Post(context.Background(), now, Options{}); err == nil {
		t.Fatal("Post should surface the syndication failure")
	}
}

func TestAltTextEmptyWeek(t *testing.T) {
	wr := calendar.ComputeWeekRange(time.Now(), time.UTC, calendar.SpanWorkweek)
	if got := AltText(wr, nil); !strings.Contains(got, "No streams") {
		t.Errorf("AltText = %q", got)
	}
}
