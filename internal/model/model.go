package model

import (
	"errors"
	"time"
)

var (
	// ErrMissingID is returned by Validate for events without an identifier.
	ErrMissingID = errors.New("event id is empty")
	// ErrEndBeforeStart is returned by Validate when end precedes start.
	ErrEndBeforeStart = errors.New("event end is before start")
	// ErrWindowUnset is returned by TravelWindow.Validate when a bound is
	// missing.
	ErrWindowUnset = errors.New("travel window start and end are required")
)

// EventTime is one end of a calendar event: an absolute instant plus the
// timezone label the calendar attached to it. The label may be empty, and it
// may disagree with the zone the meeting actually happens in.
type EventTime struct {
	Instant  time.Time
	TimeZone string
	// AllDay is set when the source only carried a date.
	AllDay bool
}

// Attendee identifies one invited participant.
type Attendee struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CalendarEvent represents one scheduled occurrence pulled from an external
// calendar (ICS feed, calendar API export, or a message-derived heuristic).
// It is treated as read-only once handed to the analysis engine.
type CalendarEvent struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`

	// SourceID names the calendar the event came from (config ICS ID).
	SourceID string `json:"source_id,omitempty"`
}

// Validate checks the invariants every event must satisfy before analysis.
func (e *CalendarEvent) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if e.End.Instant.Before(e.Start.Instant) {
		return ErrEndBeforeStart
	}
	return nil
}

// TravelWindow is the trip interval. Analysis treats both bounds as
// inclusive.
type TravelWindow struct {
	Start time.Time
	End   time.Time
}

// Validate reports whether the window is well formed.
func (w TravelWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return ErrWindowUnset
	}
	if w.End.Before(w.Start) {
		return errors.New("travel window end is before start")
	}
	return nil
}

// Contains reports whether t lies within [Start, End].
func (w TravelWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
