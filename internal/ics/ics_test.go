package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const tripCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//tripcal//test//EN
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20250801T000000Z
DTSTART;TZID=America/New_York:20250901T090000
DTEND;TZID=America/New_York:20250901T093000
RRULE:FREQ=DAILY;COUNT=5
EXDATE;TZID=America/New_York:20250903T090000
SUMMARY:Daily standup
ATTENDEE;CN=Ana Lima:mailto:ana@example.com
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20250801T000000Z
RECURRENCE-ID;TZID=America/New_York:20250902T090000
DTSTART;TZID=America/New_York:20250902T070000
DTEND;TZID=America/New_York:20250902T073000
SUMMARY:Daily standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:flight@example.com
DTSTAMP:20250801T000000Z
DTSTART:20250830T140000Z
DTEND:20250830T210000Z
SUMMARY:Flight to London
LOCATION:JFK Terminal 4
END:VEVENT
BEGIN:VEVENT
UID:offsite@example.com
DTSTAMP:20250801T000000Z
DTSTART;VALUE=DATE:20250904
DTEND;VALUE=DATE:20250905
SUMMARY:Offsite
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20250801T000000Z
DTSTART:20250901T100000Z
SUMMARY:No uid
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseICS(t *testing.T) {
	events, err := ParseICS(Source{ID: "work"}, crlf(tripCalendar))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events (UID-less one skipped), got %d", len(events))
	}

	standup := events[0]
	if standup.StartTZ != "America/New_York" || standup.EndTZ != "America/New_York" {
		t.Errorf("expected TZID labels, got %q/%q", standup.StartTZ, standup.EndTZ)
	}
	if !standup.Start.Equal(utc("2025-09-01T13:00:00Z")) {
		t.Errorf("unexpected start %v", standup.Start)
	}
	if standup.RawRRule != "FREQ=DAILY;COUNT=5" || len(standup.ExDates) != 1 {
		t.Errorf("unexpected recurrence data: %q %v", standup.RawRRule, standup.ExDates)
	}
	if len(standup.Attendees) != 1 || standup.Attendees[0].Email != "ana@example.com" || standup.Attendees[0].Name != "Ana Lima" {
		t.Errorf("unexpected attendees %+v", standup.Attendees)
	}

	override := events[1]
	if !override.IsOverride || override.Recurrence == nil || !override.Recurrence.Equal(utc("2025-09-02T13:00:00Z")) {
		t.Errorf("expected override of the Sep 2 instance, got %+v", override)
	}

	flight := events[2]
	if flight.StartTZ != "" || !flight.Start.Equal(utc("2025-08-30T14:00:00Z")) || flight.Location != "JFK Terminal 4" {
		t.Errorf("unexpected flight %+v", flight)
	}

	offsite := events[3]
	if !offsite.AllDay || !offsite.Start.Equal(utc("2025-09-04T00:00:00Z")) || !offsite.End.Equal(utc("2025-09-05T00:00:00Z")) {
		t.Errorf("unexpected all-day event %+v", offsite)
	}
}

func TestParseICS_Empty(t *testing.T) {
	if _, err := ParseICS(Source{ID: "x"}, []byte("  \n")); err == nil {
		t.Errorf("expected error for empty body")
	}
}

func TestExpandOccurrences(t *testing.T) {
	parsed, err := ParseICS(Source{ID: "work"}, crlf(tripCalendar))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		RangeStart: utc("2025-08-30T00:00:00Z"),
		RangeEnd:   utc("2025-09-10T00:00:00Z"),
	})
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}

	type want struct {
		id      string
		summary string
		start   string
	}
	wants := []want{
		{"flight@example.com", "Flight to London", "2025-08-30T14:00:00Z"},
		{"standup@example.com#2025-09-01T13:00:00Z", "Daily standup", "2025-09-01T13:00:00Z"},
		{"standup@example.com#2025-09-02T13:00:00Z", "Daily standup (moved)", "2025-09-02T11:00:00Z"},
		{"offsite@example.com", "Offsite", "2025-09-04T00:00:00Z"},
		{"standup@example.com#2025-09-04T13:00:00Z", "Daily standup", "2025-09-04T13:00:00Z"},
		{"standup@example.com#2025-09-05T13:00:00Z", "Daily standup", "2025-09-05T13:00:00Z"},
	}
	if len(res.Events) != len(wants) {
		t.Fatalf("expected %d events, got %d: %+v", len(wants), len(res.Events), res.Events)
	}
	for i, w := range wants {
		ev := res.Events[i]
		if ev.ID != w.id || ev.Summary != w.summary || !ev.Start.Instant.Equal(utc(w.start)) {
			t.Errorf("event %d: got %s %q %v, want %s %q %s", i, ev.ID, ev.Summary, ev.Start.Instant, w.id, w.summary, w.start)
		}
		if ev.SourceID != "work" {
			t.Errorf("event %d: expected source id work, got %q", i, ev.SourceID)
		}
		if err := ev.Validate(); err != nil {
			t.Errorf("event %d failed validation: %v", i, err)
		}
	}
	if got := res.Events[1].Start.TimeZone; got != "America/New_York" {
		t.Errorf("expanded instance should keep the TZID label, got %q", got)
	}
	if !res.Events[3].Start.AllDay {
		t.Errorf("offsite should stay all-day")
	}
}

func TestExpandOccurrences_Cap(t *testing.T) {
	ev := ParsedEvent{
		UID:      "forever",
		Start:    utc("2025-01-01T09:00:00Z"),
		End:      utc("2025-01-01T09:30:00Z"),
		RawRRule: "FREQ=DAILY",
	}
	res, err := ExpandOccurrences([]ParsedEvent{ev}, ExpandConfig{
		RangeStart:             utc("2025-01-01T00:00:00Z"),
		RangeEnd:               utc("2025-12-31T00:00:00Z"),
		MaxOccurrencesPerEvent: 3,
	})
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(res.Events) != 3 {
		t.Errorf("expected 3 capped events, got %d", len(res.Events))
	}
	if len(res.TruncatedEvents) != 1 || res.TruncatedEvents[0] != "forever" {
		t.Errorf("expected forever to be reported truncated, got %v", res.TruncatedEvents)
	}
}

func TestExpandOccurrences_BadRange(t *testing.T) {
	_, err := ExpandOccurrences(nil, ExpandConfig{
		RangeStart: utc("2025-02-01T00:00:00Z"),
		RangeEnd:   utc("2025-01-01T00:00:00Z"),
	})
	if err == nil {
		t.Errorf("expected error for inverted range")
	}
}

func TestFetcher_ConditionalAndFallback(t *testing.T) {
	var hits, failing atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	src := Source{ID: "remote", URL: srv.URL + "/private/token.ics"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, src)
	if err != nil || first.FromCache {
		t.Fatalf("first fetch should be fresh: %+v %v", first, err)
	}

	second, err := f.FetchOne(ctx, src)
	if err != nil || !second.FromCache || string(second.Body) != string(first.Body) {
		t.Fatalf("second fetch should be a 304 cache hit: %+v %v", second, err)
	}

	failing.Store(1)
	third, err := f.FetchOne(ctx, src)
	if err != nil || !third.FromCache {
		t.Fatalf("upstream failure should fall back to cache: %+v %v", third, err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 upstream hits, got %d", hits.Load())
	}

	_, errs := f.FetchAll(ctx, []Source{{ID: "fresh", URL: srv.URL + "/other.ics"}})
	if len(errs) != 1 {
		t.Errorf("uncached failing source should report an error, got %v", errs)
	}
}

func TestFetcher_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	if err := os.WriteFile(path, crlf(tripCalendar), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := NewFetcher(t.TempDir(), 0)
	for _, u := range []string{path, "file://" + path} {
		res, err := f.FetchOne(context.Background(), Source{ID: "local", URL: u})
		if err != nil {
			t.Fatalf("fetch %s: %v", u, err)
		}
		if !strings.Contains(string(res.Body), "standup@example.com") {
			t.Errorf("unexpected body from %s", u)
		}
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://calendar.example.com/ical/secret/basic.ics?token=abc": "https://calendar.example.com/...(redacted)",
		"not a url": "ics://...(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
