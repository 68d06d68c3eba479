package tz

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultFallbackTimezone is returned for cities the resolver does not know.
// It is an approximation and is never correct for an unmapped city.
const DefaultFallbackTimezone = "Europe/London"

var builtinCities = map[string]string{
	"london":        "Europe/London",
	"new york":      "America/New_York",
	"san francisco": "America/Los_Angeles",
	"tokyo":         "Asia/Tokyo",
	"singapore":     "Asia/Singapore",
	"paris":         "Europe/Paris",
	"berlin":        "Europe/Berlin",
	"sydney":        "Australia/Sydney",
	"dubai":         "Asia/Dubai",
	"amsterdam":     "Europe/Amsterdam",
}

// DefaultCities returns a fresh copy of the built-in city table.
func DefaultCities() map[string]string {
	out := make(map[string]string, len(builtinCities))
	for k, v := range builtinCities {
		out[k] = v
	}
	return out
}

// Resolver maps free-text city names onto IANA zone identifiers. The table is
// copied at construction and never changes afterwards, so a Resolver may be
// shared between goroutines.
type Resolver struct {
	cities   map[string]string
	fallback string
}

// NewResolver builds a resolver over cities. Keys are normalized the same way
// lookups are. An empty fallback selects DefaultFallbackTimezone.
func NewResolver(cities map[string]string, fallback string) *Resolver {
	if fallback == "" {
		fallback = DefaultFallbackTimezone
	}
	r := &Resolver{
		cities:   make(map[string]string, len(cities)),
		fallback: fallback,
	}
	for name, zone := range cities {
		key := normalizeCity(name)
		if key == "" || zone == "" {
			continue
		}
		r.cities[key] = zone
	}
	return r
}

// Resolve never fails: unknown or empty names yield the fallback zone.
func (r *Resolver) Resolve(city string) string {
	if zone, ok := r.cities[normalizeCity(city)]; ok {
		return zone
	}
	return r.fallback
}

// Known reports whether city is in the table.
func (r *Resolver) Known(city string) bool {
	_, ok := r.cities[normalizeCity(city)]
	return ok
}

// Fallback returns the zone used for unknown cities.
func (r *Resolver) Fallback() string { return r.fallback }

// Cities returns the normalized city names, longest first so that
// substring scans prefer "new york" over "york".
func (r *Resolver) Cities() []string {
	out := make([]string, 0, len(r.cities))
	for k := range r.cities {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// normalizeCity trims, collapses inner whitespace and case-folds. A Caser
// carries state, so one is built per call.
func normalizeCity(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
