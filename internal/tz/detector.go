package tz

import (
	"fmt"
	"strings"
	"time"

	"tripcal/internal/model"
)

// ruleInput is everything a rule may look at for one event.
type ruleInput struct {
	event       model.CalendarEvent
	destination string
	destZone    string
	destHour    int
	destTime    string
	hours       BusinessHoursAnalysis
}

type outcome struct {
	kind     ConflictType
	severity Severity
	reason   string
}

// rule is one predicate->outcome pair of the classification chain.
type rule struct {
	name  string
	match func(p Policy, in ruleInput) (outcome, bool)
}

// Detector runs the ordered rule chain over single events. Every rule is
// evaluated and the last one that matches decides the conflict.
type Detector struct {
	policy     Policy
	classifier *Classifier
	rules      []rule
}

func NewDetector(p Policy) *Detector {
	return &Detector{
		policy:     p,
		classifier: NewClassifier(p),
		rules: []rule{
			{name: "business_hours", match: matchBusinessHours},
			{name: "timezone_mismatch", match: matchTimezoneMismatch},
			{name: "travel_keyword", match: matchTravelKeyword},
		},
	}
}

// Rules lists rule names in evaluation order.
func (d *Detector) Rules() []string {
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.name
	}
	return names
}

// Detect classifies ev. It returns (nil, nil) when no rule matches. The
// returned conflict carries no reschedule options; see Planner.
func (d *Detector) Detect(ev model.CalendarEvent, home, dest *time.Location, destination string) (*Conflict, error) {
	hours, err := d.classifier.Classify(ev, home, dest)
	if err != nil {
		return nil, err
	}

	start := ev.Start.Instant
	in := ruleInput{
		event:       ev,
		destination: destination,
		destZone:    dest.String(),
		destHour:    hourIn(start, dest),
		destTime:    describe(start, dest),
		hours:       hours,
	}

	var (
		final   outcome
		matched bool
	)
	for _, r := range d.rules {
		if o, ok := r.match(d.policy, in); ok {
			final = o
			matched = true
		}
	}
	if !matched {
		return nil, nil
	}

	return &Conflict{
		Event:           ev,
		Type:            final.kind,
		Severity:        final.severity,
		Reason:          final.reason,
		HomeTime:        describe(start, home),
		DestinationTime: in.destTime,
		BusinessHours:   hours,
		destHour:        in.destHour,
	}, nil
}

func matchBusinessHours(p Policy, in ruleInput) (outcome, bool) {
	if in.hours.WithinBusinessHours {
		return outcome{}, false
	}

	h := in.destHour
	switch {
	case h < p.EarlyHour:
		sev := SeverityMedium
		if h < p.VeryEarlyHour {
			sev = SeverityHigh
		}
		return outcome{
			kind:     VeryEarly,
			severity: sev,
			reason: fmt.Sprintf("Meeting at %s in %s is very early (%d:00) - outside business hours",
				in.destTime, in.destination, h),
		}, true
	case h > p.LateHour:
		sev := SeverityMedium
		if h > p.VeryLateHour {
			sev = SeverityHigh
		}
		return outcome{
			kind:     VeryLate,
			severity: sev,
			reason: fmt.Sprintf("Meeting at %s in %s is very late (%d:00) - outside business hours",
				in.destTime, in.destination, h),
		}, true
	default:
		return outcome{
			kind:     BusinessHoursConflict,
			severity: SeverityMedium,
			reason: fmt.Sprintf("Meeting at %s in %s is outside business hours (%s)",
				in.destTime, in.destination, in.hours.BusinessHoursRange),
		}, true
	}
}

func matchTimezoneMismatch(_ Policy, in ruleInput) (outcome, bool) {
	label := in.event.Start.TimeZone
	if label == "" || label == in.destZone {
		return outcome{}, false
	}
	return outcome{
		kind:     TimezoneMismatch,
		severity: SeverityMedium,
		reason:   fmt.Sprintf("Meeting timezone (%s) doesn't match destination timezone (%s)", label, in.destZone),
	}, true
}

func matchTravelKeyword(p Policy, in ruleInput) (outcome, bool) {
	if !mentionsTravel(in.event, p.TravelKeywords) {
		return outcome{}, false
	}
	return outcome{
		kind:     OverlapsTravel,
		severity: SeverityHigh,
		reason:   fmt.Sprintf("Meeting conflicts with travel time to %s", in.destination),
	}, true
}

func mentionsTravel(ev model.CalendarEvent, keywords []string) bool {
	text := strings.ToLower(ev.Summary + " " + ev.Description)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
