package tz

import (
	"fmt"
	"time"

	"tripcal/internal/model"
)

const (
	shortLayout = "03:04 PM"
	longLayout  = "Mon, Jan 2, 03:04 PM"
)

// Classifier renders event times in the home and destination zones and
// applies the business-hours policy.
type Classifier struct {
	policy Policy
}

func NewClassifier(p Policy) *Classifier {
	return &Classifier{policy: p}
}

// Classify returns the business-hours analysis for ev. It fails with
// ErrUnrenderable when either instant is unset.
func (c *Classifier) Classify(ev model.CalendarEvent, home, dest *time.Location) (BusinessHoursAnalysis, error) {
	if err := renderable(ev); err != nil {
		return BusinessHoursAnalysis{}, err
	}

	start, end := ev.Start.Instant, ev.End.Instant

	return BusinessHoursAnalysis{
		LocalStartTime:       start.In(home).Format(shortLayout),
		LocalEndTime:         end.In(home).Format(shortLayout),
		DestinationStartTime: start.In(dest).Format(shortLayout),
		DestinationEndTime:   end.In(dest).Format(shortLayout),
		WithinBusinessHours:  c.Within(start, end, home, dest),
		BusinessHoursRange:   c.policy.RangeText(),
	}, nil
}

// Within applies the business-hours rule on the governing clock: the start
// must be at or after BusinessStart to the minute, and the end hour must not
// exceed BusinessEnd's hour.
func (c *Classifier) Within(start, end time.Time, home, dest *time.Location) bool {
	clock := c.policy.governor().Clock(home, dest)
	s := start.In(clock)
	e := end.In(clock)

	if s.Hour()*60+s.Minute() < c.policy.BusinessStart.Minutes() {
		return false
	}
	return e.Hour() <= c.policy.BusinessEnd.Hour
}

func renderable(ev model.CalendarEvent) error {
	if ev.Start.Instant.IsZero() {
		return fmt.Errorf("%w: event %q has no start", ErrUnrenderable, ev.ID)
	}
	if ev.End.Instant.IsZero() {
		return fmt.Errorf("%w: event %q has no end", ErrUnrenderable, ev.ID)
	}
	return nil
}

// hourIn is the 24-hour clock hour of t in loc; it agrees with the hour shown
// by the 12-hour renderings.
func hourIn(t time.Time, loc *time.Location) int {
	return t.In(loc).Hour()
}

func describe(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(longLayout)
}
