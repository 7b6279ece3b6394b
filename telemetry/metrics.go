package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulePosts counts full post runs, labeled success or error.
	SchedulePosts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lemonbot_schedule_posts_total",
		Help: "Schedule post runs by result.",
	}, []string{"result"})

	// CalendarFetchFailures counts failed ICS feed fetches.
	CalendarFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lemonbot_calendar_fetch_failures_total",
		Help: "Failed calendar feed fetches.",
	})

	// SegmentsCreated counts Twitch schedule segments created by the
	// reconciler.
	SegmentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lemonbot_twitch_segments_created_total",
		Help: "Twitch schedule segments created.",
	})

	// SegmentsDeleted counts Twitch schedule segments deleted by the
	// reconciler.
	SegmentsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lemonbot_twitch_segments_deleted_total",
		Help: "Twitch schedule segments deleted.",
	})

	// TokenRefreshes counts user token refresh grants.
	TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lemonbot_twitch_token_refreshes_total",
		Help: "Twitch user token refresh grants executed.",
	})

	// BlueskyPosts counts image posts syndicated to Bluesky, by result.
	BlueskyPosts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lemonbot_bluesky_posts_total",
		Help: "Bluesky syndication attempts by result.",
	}, []string{"result"})

	// RenderDuration observes how long one schedule image render takes.
	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lemonbot_render_duration_seconds",
		Help:    "Time spent rendering the schedule image.",
		Buckets: prometheus.DefBuckets,
	})
)
