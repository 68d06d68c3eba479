package tz

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"tripcal/internal/model"
)

// Request is one trip analysis. HomeTimezone overrides the policy's home zone
// when set.
type Request struct {
	Events       []model.CalendarEvent `json:"events"`
	Destination  string                `json:"destination"`
	Window       model.TravelWindow    `json:"window"`
	HomeTimezone string                `json:"home_timezone,omitempty"`
}

// Analyzer is the trip-level entry point. It holds only immutable
// configuration; concurrent Analyze calls do not interact.
type Analyzer struct {
	resolver *Resolver
	policy   Policy
	detector *Detector
	planner  *Planner
	logger   *zap.Logger
}

// NewAnalyzer wires the engine. A nil logger discards output.
func NewAnalyzer(resolver *Resolver, policy Policy, logger *zap.Logger) *Analyzer {
	if resolver == nil {
		resolver = NewResolver(DefaultCities(), "")
	}
	if policy.HomeTimezone == "" {
		policy.HomeTimezone = DefaultHomeTimezone
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		resolver: resolver,
		policy:   policy,
		detector: NewDetector(policy),
		planner:  NewPlanner(policy),
		logger:   logger,
	}
}

// Resolver exposes the city table the analyzer uses.
func (a *Analyzer) Resolver() *Resolver { return a.resolver }

// Policy returns the analyzer's policy.
func (a *Analyzer) Policy() Policy { return a.policy }

// Analyze finds timezone conflicts for events starting inside the window,
// attaches remediation options, sorts by severity and summarizes. Invalid
// input fails the whole call; an event that cannot be rendered is skipped.
func (a *Analyzer) Analyze(req Request) (*Result, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	// Events missing an instant are skipped, not rejected.
	var skipped []string
	events := make([]model.CalendarEvent, 0, len(req.Events))
	for i, ev := range req.Events {
		if err := renderable(ev); err != nil {
			a.logger.Warn("skipping event", zap.String("event_id", ev.ID), zap.Error(err))
			skipped = append(skipped, ev.ID)
			continue
		}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("%w: event %d (%q): %v", ErrInvalidEvent, i, ev.ID, err)
		}
		events = append(events, ev)
	}

	homeName := req.HomeTimezone
	if homeName == "" {
		homeName = a.policy.HomeTimezone
	}
	home, err := time.LoadLocation(homeName)
	if err != nil {
		return nil, fmt.Errorf("%w: home %q: %v", ErrUnknownTimezone, homeName, err)
	}

	destName := a.resolver.Resolve(req.Destination)
	dest, err := time.LoadLocation(destName)
	if err != nil {
		return nil, fmt.Errorf("%w: destination %q resolved to %q: %v", ErrUnknownTimezone, req.Destination, destName, err)
	}
	if !a.resolver.Known(req.Destination) {
		a.logger.Debug("destination not in city table, using fallback zone",
			zap.String("destination", req.Destination),
			zap.String("timezone", destName))
	}

	res := &Result{
		Destination:         req.Destination,
		DestinationTimezone: destName,
		HomeTimezone:        homeName,
		Window:              req.Window,
		Skipped:             skipped,
		Conflicts:           []Conflict{},
	}

	for _, ev := range events {
		if !req.Window.Contains(ev.Start.Instant) {
			continue
		}
		res.EventsConsidered++

		c, err := a.detector.Detect(ev, home, dest, req.Destination)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}

		c.RescheduleOptions = a.planner.Plan(ev, c.destHour, dest, c.Type)
		res.Conflicts = append(res.Conflicts, *c)
	}

	SortBySeverity(res.Conflicts)
	res.Summary = Summarize(res.Conflicts)
	res.Recommendations = Recommend(res.Conflicts, a.policy)

	a.logger.Debug("timezone analysis complete",
		zap.String("destination", req.Destination),
		zap.Int("events", len(req.Events)),
		zap.Int("considered", res.EventsConsidered),
		zap.Int("conflicts", len(res.Conflicts)))

	return res, nil
}

// SortBySeverity orders conflicts high to low, keeping input order among
// equals.
func SortBySeverity(conflicts []Conflict) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Severity.Rank() > conflicts[j].Severity.Rank()
	})
}

// Summarize counts conflicts by severity and by type.
func Summarize(conflicts []Conflict) Summary {
	s := Summary{
		Total:      len(conflicts),
		BySeverity: make(map[Severity]int),
		ByType:     make(map[ConflictType]int),
	}
	for _, c := range conflicts {
		s.BySeverity[c.Severity]++
		s.ByType[c.Type]++
	}
	return s
}
