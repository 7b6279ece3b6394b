package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lemonops/lemonbot/calendar"
	"github.com/lemonops/lemonbot/telemetry"
)

// CalendarSource fetches the week's events around a reference date.
type CalendarSource interface {
	Fetch(ctx context.Context, ref time.Time) (*calendar.Week, error)
}

// ImageRenderer produces the schedule PNG for a week.
type ImageRenderer interface {
	Render(wr calendar.WeekRange, events []calendar.Event) ([]byte, error)
}

// Syndicator posts the rendered image to an external network.
type Syndicator interface {
	PostImage(ctx context.Context, text string, png []byte, alt string) error
}

// Options are per-call overrides of the configured policy flags. A nil
// field means "use the policy".
type Options struct {
	Bluesky *bool
	Twitch  *bool
}

// Result is the artifacts of one post run, handed back so callers (the
// HTTP trigger, a chat command) can forward the image wherever they like.
type Result struct {
	Week  *calendar.Week
	Image []byte
}

// Poster runs the full weekly pipeline. Syndication and reconciliation
// both depend on the fetched week but not on each other, so they run
// concurrently once fetch and render have succeeded.
type Poster struct {
	Calendar   CalendarSource
	Renderer   ImageRenderer
	Bluesky    Syndicator  // optional
	Reconciler *Reconciler // optional
	Policies   PolicySource
}

// Post fetches the week around ref, renders the image, and fans out to the
// enabled targets. The artifacts are returned even to callers that only
// want the image.
func (p *Poster) Post(ctx context.Context, ref time.Time, opts Options) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "post")
	defer span.End()

	fail := func(err error) (*Result, error) {
		telemetry.SchedulePosts.WithLabelValues("error").Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}

	pol, err := p.Policies.Policy(ctx)
	if err != nil {
		return fail(fmt.Errorf("load policy: %w", err))
	}

	week, err := p.Calendar.Fetch(ctx, ref)
	if err != nil {
		telemetry.CalendarFetchFailures.Inc()
		return fail(fmt.Errorf("fetch calendar: %w", err))
	}

	started := time.Now()
	img, err := p.Renderer.Render(week.Range, week.Events)
	if err != nil {
		return fail(fmt.Errorf("render schedule: %w", err))
	}
	telemetry.RenderDuration.Observe(time.Since(started).Seconds())

	toBluesky := pol.BlueskyEnabled
	if opts.Bluesky != nil {
		toBluesky = *opts.Bluesky
	}
	toTwitch := pol.TwitchEnabled
	if opts.Twitch != nil {
		toTwitch = *opts.Twitch
	}

	g, gctx := errgroup.WithContext(ctx)
	if toBluesky && p.Bluesky != nil {
		g.Go(func() error { return p.syndicate(gctx, pol, week, img) })
	}
	if toTwitch && p.Reconciler != nil {
		g.Go(func() error { return p.Reconciler.Reconcile(gctx, week.Events, week.Range) })
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	telemetry.SchedulePosts.WithLabelValues("success").Inc()
	telemetry.SetSpanSuccess(span)
	return &Result{Week: week, Image: img}, nil
}

// syndicate posts the image to Bluesky. With a location filter configured
// the public image is re-rendered from the filtered events so private
// entries never leave the service.
func (p *Poster) syndicate(ctx context.Context, pol Policy, week *calendar.Week, img []byte) error {
	events := week.Events
	if len(pol.BlueskyLocations) > 0 {
		events = calendar.FilterByLocation(week.Events, pol.BlueskyLocations)
		filtered, err := p.Renderer.Render(week.Range, events)
		if err != nil {
			return fmt.Errorf("render syndication image: %w", err)
		}
		img = filtered
	}

	text := pol.BlueskyText
	if text == "" {
		text = "Stream schedule for the week of " + week.Range.Start.Format("January 2")
	}
	if err := p.Bluesky.PostImage(ctx, text, img, AltText(week.Range, events)); err != nil {
		telemetry.BlueskyPosts.WithLabelValues("error").Inc()
		return fmt.Errorf("post to bluesky: %w", err)
	}
	telemetry.BlueskyPosts.WithLabelValues("success").Inc()
	return nil
}

// AltText describes the schedule image for screen readers, one line per
// event in the week's timezone.
func AltText(wr calendar.WeekRange, events []calendar.Event) string {
	if len(events) == 0 {
		return "Weekly stream schedule. No streams scheduled."
	}
	var b strings.Builder
	b.WriteString("Weekly stream schedule.")
	loc := wr.Start.Location()
	for _, ev := range events {
		start := ev.Start.In(loc)
		fmt.Fprintf(&b, " %s %s: %s.", start.Format("Monday"), start.Format("3:04PM"), ev.Summary)
	}
	return b.String()
}
