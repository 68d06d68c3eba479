package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "tripcal/internal/log"
	"tripcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	// RangeStart / RangeEnd are inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero selects the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the concrete events and the UIDs that hit the cap.
type ExpandResult struct {
	Events          []model.CalendarEvent
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into calendar events inside the
// range. It applies RRULE, EXDATE and RECURRENCE-ID overrides and returns
// events sorted by start, then ID. Instants keep the event's TZID label.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	uids := make([]string, 0, len(baseByUID))
	for uid := range baseByUID {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	out := make([]model.CalendarEvent, 0)
	for _, uid := range uids {
		ov := overridesByUID[uid]
		truncated := false
		for _, ev := range baseByUID[uid] {
			var expanded []model.CalendarEvent
			if ev.RawRRule == "" {
				expanded = expandSingle(ev, ov, cfg)
			} else {
				var hitCap bool
				expanded, hitCap = expandRecurring(ev, ov, cfg)
				truncated = truncated || hitCap
			}
			out = append(out, expanded...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Start.Instant, out[j].Start.Instant
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[j].ID
	})
	result.Events = out
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.CalendarEvent {
	if !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	start, end := ev.Start, ev.End
	if o, ok := findOverride(overrides, start); ok {
		start, end, ev = o.Start, o.End, o
	}
	return []model.CalendarEvent{toCalendarEvent(ev, ev.UID, start, end)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.CalendarEvent, bool) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Error("expand: invalid RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	times := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.CalendarEvent, 0, len(times))
	for _, occStart := range times {
		occEnd := occStart.Add(dur)
		if ev.AllDay {
			occStart = time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, loc)
			occEnd = occStart.AddDate(0, 0, 1)
		}

		id := ev.UID + "#" + occStart.UTC().Format(time.RFC3339)
		base := ev
		if o, ok := findOverride(overrides, occStart); ok {
			occStart, occEnd, base = o.Start, o.End, o
		}
		out = append(out, toCalendarEvent(base, id, occStart, occEnd))
	}
	return out, hitCap
}

func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func toCalendarEvent(ev ParsedEvent, id string, start, end time.Time) model.CalendarEvent {
	var attendees []model.Attendee
	if len(ev.Attendees) > 0 {
		attendees = append(attendees, ev.Attendees...)
	}
	return model.CalendarEvent{
		ID:          id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       model.EventTime{Instant: start, TimeZone: ev.StartTZ, AllDay: ev.AllDay},
		End:         model.EventTime{Instant: end, TimeZone: ev.EndTZ, AllDay: ev.AllDay},
		Attendees:   attendees,
		SourceID:    ev.Source.ID,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
