package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	_ "time/tzdata"
)

const dateLayout = "2006-01-02"

// ParseError describes a timestamp that could not be understood.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseInstant parses an RFC3339 timestamp, a local date-time without offset,
// or a bare date. Values without an offset are interpreted in the zone named
// by label, or in UTC when label is empty. A label that does not load is an
// error for such values; RFC3339 values carry their own offset and accept any
// label.
func ParseInstant(value, label string) (t time.Time, dateOnly bool, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, errors.New("empty timestamp")
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, false, nil
	}

	loc := time.UTC
	if label != "" {
		l, lerr := time.LoadLocation(label)
		if lerr != nil {
			return time.Time{}, false, fmt.Errorf("timezone %q: %w", label, lerr)
		}
		loc = l
	}

	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc); err == nil {
		return t, false, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", value, loc); err == nil {
		return t, false, nil
	}
	t, err = time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, false, errors.New("unrecognized timestamp format")
	}
	return t, true, nil
}

// eventTimeJSON mirrors the calendar-provider shape
// {"dateTime": "...", "date": "...", "timeZone": "..."}.
type eventTimeJSON struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

func (t EventTime) MarshalJSON() ([]byte, error) {
	out := eventTimeJSON{TimeZone: t.TimeZone}
	if t.AllDay {
		out.Date = t.Instant.Format(dateLayout)
	} else if !t.Instant.IsZero() {
		out.DateTime = t.Instant.Format(time.RFC3339)
	}
	return json.Marshal(out)
}

func (t *EventTime) UnmarshalJSON(data []byte) error {
	var in eventTimeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	raw := in.DateTime
	field := "dateTime"
	if raw == "" {
		raw = in.Date
		field = "date"
	}

	instant, dateOnly, err := ParseInstant(raw, in.TimeZone)
	if err != nil {
		return &ParseError{Field: field, Value: raw, Err: err}
	}

	*t = EventTime{Instant: instant, TimeZone: in.TimeZone, AllDay: dateOnly}
	return nil
}

type windowJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ParseWindow builds a TravelWindow from two timestamp strings. Bare dates
// resolve to 00:00 UTC on that date.
func ParseWindow(start, end string) (TravelWindow, error) {
	s, _, err := ParseInstant(start, "")
	if err != nil {
		return TravelWindow{}, &ParseError{Field: "window.start", Value: start, Err: err}
	}
	e, _, err := ParseInstant(end, "")
	if err != nil {
		return TravelWindow{}, &ParseError{Field: "window.end", Value: end, Err: err}
	}
	w := TravelWindow{Start: s, End: e}
	if err := w.Validate(); err != nil {
		return TravelWindow{}, err
	}
	return w, nil
}

func (w TravelWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{
		Start: w.Start.Format(time.RFC3339),
		End:   w.End.Format(time.RFC3339),
	})
}

func (w *TravelWindow) UnmarshalJSON(data []byte) error {
	var in windowJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	parsed, err := ParseWindow(in.Start, in.End)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// DecodeEvents reads calendar events from JSON. It accepts a bare array, or
// an object carrying the array under "events" or "items" (calendar API list
// responses).
func DecodeEvents(r io.Reader) ([]CalendarEvent, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []CalendarEvent{}, nil
	}

	if data[0] == '[' {
		var events []CalendarEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return events, nil
	}

	var wrapped struct {
		Events []CalendarEvent `json:"events"`
		Items  []CalendarEvent `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if wrapped.Events != nil {
		return wrapped.Events, nil
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return []CalendarEvent{}, nil
}
