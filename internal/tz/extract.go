package tz

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tripcal/internal/model"
)

var tripKeywords = []string{
	"travel", "trip", "flight", "conference", "summit", "meeting",
	"visit", "vacation", "business trip", "convention", "workshop",
	"training", "seminar", "client meeting", "site visit", "demo",
	"business", "work", "client", "project", "presentation",
}

// IsTripEvent is the loose heuristic used to pick trip-related entries out
// of a calendar: any trip keyword, or any city the resolver knows, in the
// summary, description or location.
func IsTripEvent(ev model.CalendarEvent, r *Resolver) bool {
	text := normalizeCity(ev.Summary + " " + ev.Description + " " + ev.Location)
	for _, kw := range tripKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	if r != nil {
		for _, city := range r.Cities() {
			if strings.Contains(text, city) {
				return true
			}
		}
	}
	return false
}

// ExtractDestination guesses a destination from free text: the first known
// city mentioned (longest names first), else the part before the first
// comma, else the trimmed text. Empty input yields "Unknown".
func ExtractDestination(text string, r *Resolver) string {
	folded := normalizeCity(text)
	if r != nil {
		for _, city := range r.Cities() {
			if strings.Contains(folded, city) {
				return cases.Title(language.English).String(city)
			}
		}
	}

	if head, _, ok := strings.Cut(text, ","); ok {
		if head = strings.TrimSpace(head); head != "" {
			return head
		}
	}
	if t := strings.TrimSpace(text); t != "" {
		return t
	}
	return "Unknown"
}
