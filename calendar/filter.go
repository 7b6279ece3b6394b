package calendar

import (
	"slices"
	"time"
)

// forwardWindow is how far ahead of now the excludePast filter reaches.
// Twitch rejects deleting past-dated segments, so destructive cleanup only
// ever targets this forward-looking slice of the week.
const forwardWindow = 7 * 24 * time.Hour

// FilterByLocation keeps events whose location matches one of allowed
// exactly. Callers decide beforehand whether a filter is configured at all;
// an empty allowed list matches nothing.
func FilterByLocation(events []Event, allowed []string) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if slices.Contains(allowed, ev.Location) {
			out = append(out, ev)
		}
	}
	return out
}

// FilterByWindow keeps items whose start falls inside wr, preserving order.
// With excludePast set, wr is ignored and items are kept only when they
// start between now and now+7d.
func FilterByWindow[T Timestamped](items []T, wr WeekRange, excludePast bool) []T {
	return filterByWindowAt(items, wr, excludePast, time.Now())
}

func filterByWindowAt[T Timestamped](items []T, wr WeekRange, excludePast bool, now time.Time) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		start := it.StartTime()
		if excludePast {
			if start.Before(now) || start.After(now.Add(forwardWindow)) {
				continue
			}
		} else if !wr.Contains(start) {
			continue
		}
		out = append(out, it)
	}
	return out
}
