package tz

import (
	"errors"
	"time"

	"tripcal/internal/model"
)

var (
	// ErrInvalidEvent wraps event validation failures (start after end, missing id).
	ErrInvalidEvent = errors.New("invalid calendar event")
	// ErrInvalidWindow is returned for a travel window whose end precedes its start.
	ErrInvalidWindow = errors.New("invalid travel window")
	// ErrUnknownTimezone is returned when the home zone or the resolved
	// destination zone cannot be loaded.
	ErrUnknownTimezone = errors.New("unknown timezone")
	// ErrUnrenderable marks a single event whose times cannot be rendered.
	// Analyze skips such events instead of failing.
	ErrUnrenderable = errors.New("event time cannot be rendered")
)

// ConflictType tags the scheduling problem found for an event.
type ConflictType string

const (
	VeryEarly             ConflictType = "very_early"
	VeryLate              ConflictType = "very_late"
	BusinessHoursConflict ConflictType = "business_hours_conflict"
	TimezoneMismatch      ConflictType = "timezone_mismatch"
	OverlapsTravel        ConflictType = "overlaps_travel"
	// OutsideBusinessHours is part of the published vocabulary but the rule
	// chain reports business_hours_conflict for that case.
	OutsideBusinessHours ConflictType = "outside_business_hours"
)

// ConflictTypes lists every conflict tag in a stable order.
var ConflictTypes = []ConflictType{
	VeryEarly, VeryLate, OutsideBusinessHours, BusinessHoursConflict, TimezoneMismatch, OverlapsTravel,
}

func (c ConflictType) Valid() bool {
	switch c {
	case VeryEarly, VeryLate, BusinessHoursConflict, TimezoneMismatch, OverlapsTravel, OutsideBusinessHours:
		return true
	}
	return false
}

// Severity ranks how urgently a conflict needs attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank maps severities onto the sort order used for results: high=3,
// medium=2, low=1. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

// AttendeeImpact estimates how much a remediation disturbs other attendees.
type AttendeeImpact string

const (
	ImpactMinimal     AttendeeImpact = "minimal"
	ImpactModerate    AttendeeImpact = "moderate"
	ImpactSignificant AttendeeImpact = "significant"
)

func (a AttendeeImpact) Valid() bool {
	switch a {
	case ImpactMinimal, ImpactModerate, ImpactSignificant:
		return true
	}
	return false
}

// AlternativeAction is set on options that are not a plain time shift.
// The zero value means "no alternative action".
type AlternativeAction string

const (
	ActionNone        AlternativeAction = ""
	ActionMakeVirtual AlternativeAction = "make_virtual"
	ActionDelegate    AlternativeAction = "delegate"
	ActionReschedule  AlternativeAction = "reschedule"
)

func (a AlternativeAction) Valid() bool {
	switch a {
	case ActionNone, ActionMakeVirtual, ActionDelegate, ActionReschedule:
		return true
	}
	return false
}

// BusinessHoursAnalysis renders an event's start and end in both zones and
// records the business-hours verdict.
type BusinessHoursAnalysis struct {
	LocalStartTime       string `json:"local_start_time"`
	LocalEndTime         string `json:"local_end_time"`
	DestinationStartTime string `json:"destination_start_time"`
	DestinationEndTime   string `json:"destination_end_time"`
	WithinBusinessHours  bool   `json:"within_business_hours"`
	BusinessHoursRange   string `json:"business_hours_range"`
}

// RescheduleOption is one suggested remediation. Options attached to a
// conflict are alternatives; the caller chooses among them.
type RescheduleOption struct {
	NewDateTime        time.Time         `json:"new_date_time"`
	NewTimeDescription string            `json:"new_time_description"`
	Reason             string            `json:"reason"`
	Confidence         float64           `json:"confidence"`
	AttendeeImpact     AttendeeImpact    `json:"attendee_impact"`
	AlternativeAction  AlternativeAction `json:"alternative_action,omitempty"`
}

// Conflict is the engine's output for one problematic event. Event is a copy
// of the input; nothing in the engine modifies it.
type Conflict struct {
	Event             model.CalendarEvent   `json:"event"`
	Type              ConflictType          `json:"conflict_type"`
	Severity          Severity              `json:"severity"`
	Reason            string                `json:"reason"`
	HomeTime          string                `json:"home_time"`
	DestinationTime   string                `json:"destination_time"`
	BusinessHours     BusinessHoursAnalysis `json:"business_hours_analysis"`
	RescheduleOptions []RescheduleOption    `json:"reschedule_options"`

	// destHour is the destination-local start hour the rules evaluated.
	destHour int
}

// DestinationHour returns the destination-local start hour (0-23) that drove
// classification.
func (c *Conflict) DestinationHour() int { return c.destHour }

// Summary holds counts derived from a conflict list.
type Summary struct {
	Total      int                  `json:"total"`
	BySeverity map[Severity]int     `json:"by_severity"`
	ByType     map[ConflictType]int `json:"by_type"`
}

// Result is the unit handed to the presentation layer. It is plain data and
// safe to serialize.
type Result struct {
	Destination         string             `json:"destination"`
	DestinationTimezone string             `json:"destination_timezone"`
	HomeTimezone        string             `json:"home_timezone"`
	Window              model.TravelWindow `json:"window"`
	EventsConsidered    int                `json:"events_considered"`
	Skipped             []string           `json:"skipped,omitempty"`
	Conflicts           []Conflict         `json:"conflicts"`
	Summary             Summary            `json:"summary"`
	Recommendations     []string           `json:"recommendations"`
}
