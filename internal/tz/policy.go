package tz

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultHomeTimezone is used when neither the caller nor the policy names one.
const DefaultHomeTimezone = "America/New_York"

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("clock %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("clock %q: bad hour", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("clock %q: bad minute", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// String renders the clock in 12-hour form, e.g. "8:30 AM".
func (c Clock) String() string {
	return time.Date(2000, 1, 1, c.Hour, c.Minute, 0, 0, time.UTC).Format("3:04 PM")
}

// Governor picks which zone's wall clock the business-hours check reads.
type Governor interface {
	Clock(home, dest *time.Location) *time.Location
	// Label names the clock in the policy text, e.g. "local time".
	Label() string
}

type homeGovernor struct{}

func (homeGovernor) Clock(home, _ *time.Location) *time.Location { return home }
func (homeGovernor) Label() string                               { return "local time" }

type destinationGovernor struct{}

func (destinationGovernor) Clock(_, dest *time.Location) *time.Location { return dest }
func (destinationGovernor) Label() string                               { return "destination time" }

var (
	// HomeGoverns evaluates business hours on the traveler's home clock.
	HomeGoverns Governor = homeGovernor{}
	// DestinationGoverns evaluates business hours on the destination clock.
	DestinationGoverns Governor = destinationGovernor{}
)

// ParseGovernor maps "home" / "destination" onto a Governor.
func ParseGovernor(s string) (Governor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "home":
		return HomeGoverns, nil
	case "destination":
		return DestinationGoverns, nil
	}
	return nil, fmt.Errorf("unknown business hours governor %q", s)
}

// Policy carries every tunable of the engine.
type Policy struct {
	HomeTimezone string

	// Business hours window. Start is compared at minute precision, End at
	// hour precision (an event ending 17:45 is still inside a 17:00 window).
	BusinessStart Clock
	BusinessEnd   Clock
	Governs       Governor

	// Destination-local start hours: < EarlyHour is very early (high when
	// < VeryEarlyHour), > LateHour is very late (high when > VeryLateHour).
	EarlyHour     int
	VeryEarlyHour int
	LateHour      int
	VeryLateHour  int

	TravelKeywords []string
}

// DefaultPolicy returns the stock 08:30-17:00 home-clock policy.
func DefaultPolicy() Policy {
	return Policy{
		HomeTimezone:   DefaultHomeTimezone,
		BusinessStart:  Clock{Hour: 8, Minute: 30},
		BusinessEnd:    Clock{Hour: 17},
		Governs:        HomeGoverns,
		EarlyHour:      6,
		VeryEarlyHour:  4,
		LateHour:       22,
		VeryLateHour:   23,
		TravelKeywords: []string{"flight", "airport", "travel", "departure", "arrival"},
	}
}

// WithDestinationClock switches business hours to the destination clock.
func (p Policy) WithDestinationClock() Policy {
	p.Governs = DestinationGoverns
	return p
}

// RangeText renders the business-hours window for reasons and
// recommendations, e.g. "8:30 AM - 5:00 PM local time".
func (p Policy) RangeText() string {
	return fmt.Sprintf("%s - %s %s", p.BusinessStart, p.BusinessEnd, p.governor().Label())
}

func (p Policy) governor() Governor {
	if p.Governs == nil {
		return HomeGoverns
	}
	return p.Governs
}
