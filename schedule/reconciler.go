// Package schedule drives the weekly posting pipeline: fetch the calendar,
// render the image, syndicate it, and reconcile the Twitch channel schedule
// against the calendar's Twitch-tagged events.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/lemonops/lemonbot/calendar"
	"github.com/lemonops/lemonbot/telemetry"
	"github.com/lemonops/lemonbot/twitchapi"
)

const tracerName = "lemonbot/schedule"

// Segment durations accepted by Helix, in minutes.
const (
	minSegmentMinutes = 30
	maxSegmentMinutes = 1380
)

// Helix is the slice of the Twitch API the reconciler needs.
type Helix interface {
	GetSchedule(ctx context.Context, broadcasterID string) ([]twitchapi.Segment, error)
	DeleteSegment(ctx context.Context, broadcasterID, segmentID string) error
	CreateSegment(ctx context.Context, broadcasterID string, seg twitchapi.SegmentRequest) error
	SearchCategories(ctx context.Context, query string) (*twitchapi.Category, error)
}

// Policy is the runtime-editable behavior of a post run, read fresh from the
// config store at the start of each run so edits apply without a restart.
type Policy struct {
	Timezone         string   // segment timezone; week timezone when empty
	Recurring        bool     // create segments as weekly recurring
	TitleFromEvent   bool     // title segments from the event description
	TwitchEnabled    bool     // reconcile the channel schedule
	BlueskyEnabled   bool     // syndicate the image to Bluesky
	BlueskyText      string   // post text; a default is used when empty
	BlueskyLocations []string // when set, the syndicated image only shows these locations
}

// PolicySource yields the current policy.
type PolicySource interface {
	Policy(ctx context.Context) (Policy, error)
}

// Reconciler replaces the upcoming slice of the broadcaster's Twitch
// schedule with the calendar's Twitch-tagged events. Runs are serialized;
// an overlapping trigger waits for the running pass to finish.
type Reconciler struct {
	Helix         Helix
	BroadcasterID string
	Policies      PolicySource

	mu sync.Mutex
}

// Reconcile deletes every upcoming remote segment and recreates the
// schedule from events. Deletions complete before any creation; the first
// failed call aborts the pass and already-applied changes stay applied.
func (r *Reconciler) Reconcile(ctx context.Context, events []calendar.Event, wr calendar.WeekRange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, tracerName, "reconcile")
	defer span.End()

	pol, err := r.Policies.Policy(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("load policy: %w", err)
	}

	targets := calendar.FilterByLocation(events, []string{calendar.LocationTwitch})

	remote, err := r.Helix.GetSchedule(ctx, r.BroadcasterID)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("get twitch schedule: %w", err)
	}

	// Past segments cannot be deleted through the API; only the forward
	// window is cleared.
	stale := calendar.FilterByWindow(remote, wr, true)
	for _, seg := range stale {
		if err := r.Helix.DeleteSegment(ctx, r.BroadcasterID, seg.ID); err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("delete segment %s: %w", seg.ID, err)
		}
		telemetry.SegmentsDeleted.Inc()
	}

	upcoming := calendar.FilterByWindow(targets, wr, true)
	for _, ev := range upcoming {
		req := r.buildSegmentRequest(ctx, ev, pol, wr)
		if err := r.Helix.CreateSegment(ctx, r.BroadcasterID, req); err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("create segment for %q: %w", ev.Summary, err)
		}
		telemetry.SegmentsCreated.Inc()
	}

	slog.Info("twitch schedule reconciled",
		slog.Int("deleted", len(stale)),
		slog.Int("created", len(upcoming)))
	telemetry.SetSpanSuccess(span)
	return nil
}

// buildSegmentRequest maps one event to a creation payload. The stream
// title comes from the event description (the summary names the event, the
// description names the stream); a failed or empty category lookup leaves
// the category unset, the segment is still worth creating.
func (r *Reconciler) buildSegmentRequest(ctx context.Context, ev calendar.Event, pol Policy, wr calendar.WeekRange) twitchapi.SegmentRequest {
	tz := pol.Timezone
	if tz == "" {
		tz = wr.Start.Location().String()
	}
	req := twitchapi.SegmentRequest{
		StartTime:   ev.Start.Format(time.RFC3339),
		Timezone:    tz,
		Duration:    strconv.Itoa(clampDuration(ev)),
		IsRecurring: pol.Recurring,
	}
	if pol.TitleFromEvent {
		req.Title = ev.Description
		if req.Title == "" {
			req.Title = ev.Summary
		}
	}
	cat, err := r.Helix.SearchCategories(ctx, ev.Summary)
	if err != nil {
		slog.Warn("category lookup failed, creating segment without category",
			slog.String("summary", ev.Summary), slog.Any("err", err))
		return req
	}
	if cat != nil {
		req.CategoryID = cat.ID
	}
	return req
}

// clampDuration converts the event span to whole minutes inside the range
// Helix accepts. Events without a usable end collapse to the minimum.
func clampDuration(ev calendar.Event) int {
	minutes := int(ev.End.Sub(ev.Start).Minutes())
	if minutes < minSegmentMinutes {
		return minSegmentMinutes
	}
	if minutes > maxSegmentMinutes {
		return maxSegmentMinutes
	}
	return minutes
}
