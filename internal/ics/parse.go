package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "tripcal/internal/log"
	"tripcal/internal/model"
)

// ParsedEvent is one VEVENT before recurrence expansion.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	Attendees   []model.Attendee

	Start  time.Time
	End    time.Time
	AllDay bool
	// StartTZ / EndTZ are the raw TZID labels. They are kept even when the
	// zone cannot be loaded, since a mislabeled meeting is itself a finding.
	StartTZ string
	EndTZ   string

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID
	IsOverride bool
}

// ParseICS parses one ICS payload. A VEVENT that fails to parse is logged and
// skipped; the rest of the calendar is still returned.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	out.StartTZ = param(startProp.ICalParameters, "TZID")
	out.AllDay = isDateValue(startProp.Value, startProp.ICalParameters)

	start, err := ve.GetStartAt()
	if err != nil || out.AllDay {
		start, err = parseICSTime(startProp.Value, locationFor(out.StartTZ))
		if err != nil {
			return out, err
		}
	}
	out.Start = start

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		out.EndTZ = param(endProp.ICalParameters, "TZID")
		end, err := ve.GetEndAt()
		if err != nil || isDateValue(endProp.Value, endProp.ICalParameters) {
			end, err = parseICSTime(endProp.Value, locationFor(out.EndTZ))
			if err != nil {
				return out, err
			}
		}
		out.End = end
	} else if out.AllDay {
		out.End = out.Start.AddDate(0, 0, 1)
	} else {
		out.End = out.Start
	}
	if out.EndTZ == "" {
		out.EndTZ = out.StartTZ
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		if a, ok := parseAttendee(p.Value, p.ICalParameters); ok {
			out.Attendees = append(out.Attendees, a)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := locationFor(param(p.ICalParameters, "TZID"))
		if loc == time.UTC {
			loc = out.Start.Location()
		}
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		loc := locationFor(param(p.ICalParameters, "TZID"))
		if t, err := parseICSTime(p.Value, loc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func param(params map[string][]string, key string) string {
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func isDateValue(v string, params map[string][]string) bool {
	return strings.EqualFold(param(params, "VALUE"), "DATE") || !strings.Contains(v, "T")
}

// locationFor loads a TZID, falling back to UTC for labels the zone database
// does not know (Outlook's "Eastern Standard Time" and friends).
func locationFor(tzid string) *time.Location {
	if tzid == "" {
		return time.UTC
	}
	if loc, err := time.LoadLocation(tzid); err == nil {
		return loc
	}
	return time.UTC
}

// parseICSTime parses the basic DATE / DATE-TIME forms. Values without a Z
// suffix are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

func parseAttendee(value string, params map[string][]string) (model.Attendee, bool) {
	email := strings.TrimSpace(value)
	if len(email) >= 7 && strings.EqualFold(email[:7], "mailto:") {
		email = email[7:]
	}
	if email == "" {
		return model.Attendee{}, false
	}
	return model.Attendee{Email: email, Name: param(params, "CN")}, true
}
