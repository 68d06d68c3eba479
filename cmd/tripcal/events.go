package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tripcal/internal/config"
	"tripcal/internal/ics"
	"tripcal/internal/model"
	"tripcal/internal/refresh"
	"tripcal/internal/tz"
)

// buildRequest turns the -events file plus window and destination flags into
// an analysis request. Unset values come from the config, then from the
// events themselves.
func buildRequest(flags flagConfig, cfg *config.Config, r *tz.Resolver, now time.Time) (tz.Request, error) {
	window, pinned, err := flagWindow(flags, cfg)
	if err != nil {
		return tz.Request{}, err
	}
	if !pinned {
		now = now.UTC()
		window = model.TravelWindow{Start: now, End: now.AddDate(0, 0, cfg.HorizonDays)}
	}

	body, err := os.ReadFile(flags.events)
	if err != nil {
		return tz.Request{}, err
	}

	var events []model.CalendarEvent
	if strings.EqualFold(filepath.Ext(flags.events), ".ics") {
		parsed, err := ics.ParseICS(ics.Source{ID: filepath.Base(flags.events), URL: flags.events}, body)
		if err != nil {
			return tz.Request{}, err
		}
		expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
			RangeStart:             window.Start,
			RangeEnd:               window.End,
			MaxOccurrencesPerEvent: cfg.ExpandLimit,
		})
		if err != nil {
			return tz.Request{}, err
		}
		events = expanded.Events
	} else {
		events, err = model.DecodeEvents(bytes.NewReader(body))
		if err != nil {
			return tz.Request{}, err
		}
		// Exported event lists are not bounded by a horizon.
		if !pinned {
			if w, ok := span(events); ok {
				window = w
			}
		}
	}

	destination := flags.destination
	if destination == "" {
		destination = cfg.Trip.Destination
	}
	trip := refresh.DeriveTrip(events, r, destination, window, pinned)

	return tz.Request{
		Events:       events,
		Destination:  trip.Destination,
		Window:       trip.Window,
		HomeTimezone: flags.home,
	}, nil
}

// flagWindow returns the -from/-to window, else the configured trip window.
func flagWindow(flags flagConfig, cfg *config.Config) (model.TravelWindow, bool, error) {
	if (flags.from == "") != (flags.to == "") {
		return model.TravelWindow{}, false, errors.New("-from and -to must be given together")
	}
	if flags.from != "" {
		w, err := model.ParseWindow(flags.from, flags.to)
		if err != nil {
			return model.TravelWindow{}, false, fmt.Errorf("travel window: %w", err)
		}
		return w, true, nil
	}
	return cfg.TripWindow()
}

// span covers every event with both instants set. ok is false when there is
// none.
func span(events []model.CalendarEvent) (w model.TravelWindow, ok bool) {
	for _, ev := range events {
		start, end := ev.Start.Instant, ev.End.Instant
		if start.IsZero() || end.IsZero() {
			continue
		}
		if !ok || start.Before(w.Start) {
			w.Start = start
		}
		if !ok || end.After(w.End) {
			w.End = end
		}
		ok = true
	}
	return w, ok
}
