package calendar

import (
	"log/slog"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Safety cap; a weekly feed never legitimately produces this many
// occurrences inside one window.
const maxOccurrences = 100

// occurrencesWithin expands a parsed VEVENT into concrete events inside wr.
// Non-recurring events pass through unchanged; recurring ones are expanded
// with their RRULE, honoring EXDATE, each occurrence keeping the base
// event's duration.
func (p parsedVEvent) occurrencesWithin(wr WeekRange) []Event {
	if p.rawRRule == "" {
		return []Event{p.event}
	}

	r, err := rrule.StrToRRule(p.rawRRule)
	if err != nil {
		slog.Warn("unparsable RRULE, using base event only",
			slog.String("uid", p.event.UID), slog.Any("err", err))
		return []Event{p.event}
	}
	r.DTStart(p.event.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range p.exDates {
		set.ExDate(ex.In(p.event.Start.Location()))
	}

	loc := p.event.Start.Location()
	times := set.Between(wr.Start.In(loc), wr.End.In(loc), true)
	if len(times) > maxOccurrences {
		times = times[:maxOccurrences]
	}

	dur := p.event.End.Sub(p.event.Start)
	out := make([]Event, 0, len(times))
	for _, st := range times {
		oc := p.event
		oc.Start = st
		oc.End = st.Add(dur)
		out = append(out, oc)
	}
	return out
}

// parseExDates handles the basic DATE, DATE-TIME, and UTC forms an EXDATE
// value can carry, possibly comma separated.
func parseExDates(value string) []time.Time {
	out := make([]time.Time, 0)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var t time.Time
		var err error
		switch {
		case strings.HasSuffix(part, "Z"):
			t, err = time.Parse("20060102T150405Z", part)
		case strings.Contains(part, "T"):
			t, err = time.ParseInLocation("20060102T150405", part, time.Local)
		default:
			t, err = time.ParseInLocation("20060102", part, time.Local)
		}
		if err != nil {
			slog.Warn("unparsable EXDATE entry", slog.String("value", part), slog.Any("err", err))
			continue
		}
		out = append(out, t)
	}
	return out
}
