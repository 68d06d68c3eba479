package tz

import "fmt"

// Recommend turns a conflict list into ranked advice strings. The result is
// never empty: it always ends with the business-hours reminder.
func Recommend(conflicts []Conflict, p Policy) []string {
	s := Summarize(conflicts)
	high := s.BySeverity[SeverityHigh]

	var out []string
	if high > 2 {
		out = append(out, "Consider extending your trip by a day to reduce scheduling conflicts")
	}
	if high > 0 {
		out = append(out, "High-priority conflicts detected - review these meetings immediately")
	}
	if s.ByType[BusinessHoursConflict] > 0 {
		out = append(out, fmt.Sprintf("Several meetings fall outside business hours (%s - %s) - consider rescheduling",
			p.BusinessStart, p.BusinessEnd))
	}
	if s.ByType[VeryEarly] > 1 {
		out = append(out, fmt.Sprintf("Block morning hours (%s-%s) for the first 2 days to adjust to timezone",
			p.BusinessStart, Clock{Hour: defaultMeetingHour}))
	}
	if s.ByType[VeryLate] > 1 {
		out = append(out, "Suggest virtual alternatives for late evening meetings")
	}
	if s.ByType[TimezoneMismatch] > 0 {
		out = append(out, "Update meeting timezone settings to match your destination timezone")
	}
	if s.ByType[OverlapsTravel] > 0 {
		out = append(out, "Meetings conflict with travel time - consider moving to day before/after travel")
	}

	switch {
	case s.Total == 0:
		out = append(out, "Great! No major timezone conflicts detected for your trip")
	case s.Total <= 2:
		out = append(out, "Only minor conflicts detected - your schedule looks manageable")
	}

	out = append(out, fmt.Sprintf("Remember: Business hours are %s", p.RangeText()))
	return out
}
