package calendar

import "time"

// Location tags route an event to a render color/icon and decide whether
// it syncs to the Twitch schedule.
const (
	LocationTwitch  = "Twitch"
	LocationDiscord = "Discord"
)

// Kind distinguishes renderable events from other calendar items.
type Kind int

const (
	KindEvent Kind = iota
	KindOther
)

// Event is one normalized calendar entry. Events are produced fresh per
// fetch and never mutated afterwards; downstream consumers treat them as
// read-only.
type Event struct {
	UID         string
	Kind        Kind
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// StartTime implements Timestamped.
func (e Event) StartTime() time.Time { return e.Start }

// Timestamped is the shared shape of anything carrying a start instant.
// Both Event and the remote schedule segment satisfy it, which lets the
// window filter serve the render path and the reconciler's stale-segment
// cleanup with one implementation.
type Timestamped interface {
	StartTime() time.Time
}

// Week is the result of one calendar fetch: the computed window, the
// resolved timezone, and the events inside the window sorted by start.
type Week struct {
	Range    WeekRange
	Location *time.Location
	Events   []Event
}
