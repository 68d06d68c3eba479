package tz

import (
	"fmt"
	"time"

	"tripcal/internal/model"
)

// Target destination-local hours for time-shifting options.
const (
	morningRecoveryHour = 9
	afternoonHour       = 14
	defaultMeetingHour  = 10
)

const keepCurrentTime = "Keep current time"

// Planner proposes remediation options for a detected conflict.
type Planner struct {
	policy Policy
}

func NewPlanner(p Policy) *Planner {
	return &Planner{policy: p}
}

// Plan returns options in insertion order; callers present all of them.
func (p *Planner) Plan(ev model.CalendarEvent, destHour int, dest *time.Location, kind ConflictType) []RescheduleOption {
	options := make([]RescheduleOption, 0, 3)
	original := ev.Start.Instant
	local := original.In(dest)

	switch kind {
	case VeryEarly, VeryLate, BusinessHoursConflict:
		hour := p.optimalHour(destHour)
		moved := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, dest)
		options = append(options, RescheduleOption{
			NewDateTime:        moved.UTC(),
			NewTimeDescription: describe(moved, dest),
			Reason:             fmt.Sprintf("Move to optimal business hours (%s) in destination", Clock{Hour: hour}),
			Confidence:         0.9,
			AttendeeImpact:     ImpactMinimal,
		})
	}

	if kind != OverlapsTravel {
		options = append(options, RescheduleOption{
			NewDateTime:        original.UTC(),
			NewTimeDescription: keepCurrentTime,
			Reason:             "Convert to virtual meeting - join from destination",
			Confidence:         0.8,
			AttendeeImpact:     ImpactMinimal,
			AlternativeAction:  ActionMakeVirtual,
		})
	}

	if kind == OverlapsTravel {
		dayBefore := time.Date(local.Year(), local.Month(), local.Day()-1, afternoonHour, 0, 0, 0, dest)
		options = append(options, RescheduleOption{
			NewDateTime:        dayBefore.UTC(),
			NewTimeDescription: describe(dayBefore, dest),
			Reason:             "Move to day before travel",
			Confidence:         0.7,
			AttendeeImpact:     ImpactModerate,
		})
	}

	if kind == VeryEarly && destHour < p.policy.VeryEarlyHour {
		options = append(options, RescheduleOption{
			NewDateTime:        original.UTC(),
			NewTimeDescription: keepCurrentTime,
			Reason:             "Consider delegating this very early meeting",
			Confidence:         0.6,
			AttendeeImpact:     ImpactSignificant,
			AlternativeAction:  ActionDelegate,
		})
	}

	if kind == TimezoneMismatch {
		options = append(options, RescheduleOption{
			NewDateTime:        original.UTC(),
			NewTimeDescription: keepCurrentTime,
			Reason:             "Update meeting timezone settings to match destination",
			Confidence:         0.7,
			AttendeeImpact:     ImpactMinimal,
		})
	}

	return options
}

func (p *Planner) optimalHour(destHour int) int {
	switch {
	case destHour < p.policy.EarlyHour:
		return morningRecoveryHour
	case destHour > p.policy.LateHour:
		return afternoonHour
	default:
		return defaultMeetingHour
	}
}
