// Package calendar fetches the weekly ICS feed and normalizes it into the
// event model consumed by rendering and Twitch schedule reconciliation.
package calendar

import "time"

// Span selects how many weekdays a week window covers. The five day span
// feeds the schedule image (Mon-Fri slots); the full span feeds Twitch
// schedule reconciliation.
type Span int

const (
	SpanWorkweek Span = 5
	SpanFullWeek Span = 7
)

// WeekRange bounds the events in scope for one schedule invocation.
// Start is Monday 00:00:00 local time; End is Friday or Sunday 23:59:00
// depending on the span. Both bounds are inclusive.
type WeekRange struct {
	Start time.Time
	End   time.Time
}

// ComputeWeekRange returns the week window containing ref, evaluated in loc.
// Sunday counts as weekday 7, so a Sunday reference still resolves to the
// Monday six days earlier.
func ComputeWeekRange(ref time.Time, loc *time.Location, span Span) WeekRange {
	local := ref.In(loc)
	wd := int(local.Weekday())
	if wd == 0 {
		wd = 7
	}
	monday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -(wd - 1))
	days := 4
	if span == SpanFullWeek {
		days = 6
	}
	last := monday.AddDate(0, 0, days)
	end := time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 0, 0, loc)
	return WeekRange{Start: monday, End: end}
}

// Contains reports whether t falls within the window, bounds inclusive.
func (wr WeekRange) Contains(t time.Time) bool {
	return !t.Before(wr.Start) && !t.After(wr.End)
}

// DisplayEnd returns the last weekday shown on the rendered date-range
// label. The label always covers Monday through Friday, even when the
// window itself extends to Sunday.
func (wr WeekRange) DisplayEnd() time.Time {
	return wr.Start.AddDate(0, 0, 4)
}
