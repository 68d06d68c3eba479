package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tripcal/internal/config"
	"tripcal/internal/ics"
	"tripcal/internal/metrics"
	"tripcal/internal/model"
	"tripcal/internal/store"
	"tripcal/internal/tz"
)

// LatestKey is the store key of the most recent scheduled analysis.
const LatestKey = "trip:latest"

// ErrNoSources is returned when the config lists no calendars.
var ErrNoSources = errors.New("refresh: no ICS sources configured")

// Job fetches the configured calendars, works out the trip and stores the
// analysis under LatestKey.
type Job struct {
	cfg      *config.Config
	fetcher  *ics.Fetcher
	analyzer *tz.Analyzer
	repo     store.Repository
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewJob(cfg *config.Config, fetcher *ics.Fetcher, analyzer *tz.Analyzer, repo store.Repository, m *metrics.Metrics, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		cfg:      cfg,
		fetcher:  fetcher,
		analyzer: analyzer,
		repo:     repo,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Trip is the analysis input derived from configuration and calendar data.
type Trip struct {
	Destination string
	Window      model.TravelWindow
}

// Run performs one refresh cycle.
func (j *Job) Run(ctx context.Context) (*tz.Result, error) {
	res, events, err := j.run(ctx)
	if j.metrics != nil {
		j.metrics.ObserveRefresh(err, events, j.now())
	}
	if err != nil {
		j.logger.Error("refresh failed", zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (j *Job) run(ctx context.Context) (*tz.Result, int, error) {
	sources := Sources(j.cfg.ICS)
	if len(sources) == 0 {
		return nil, 0, ErrNoSources
	}

	fetched, errs := j.fetcher.FetchAll(ctx, sources)
	if len(fetched) == 0 {
		return nil, 0, fmt.Errorf("refresh: every source failed: %w", errors.Join(errs...))
	}

	var parsed []ics.ParsedEvent
	for _, fr := range fetched {
		evs, err := ics.ParseICS(fr.Source, fr.Body)
		if err != nil {
			j.logger.Warn("skipping unparsable calendar", zap.String("source", fr.Source.ID), zap.Error(err))
			continue
		}
		parsed = append(parsed, evs...)
	}

	scan, pinned, err := j.scanWindow()
	if err != nil {
		return nil, 0, err
	}
	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		RangeStart:             scan.Start,
		RangeEnd:               scan.End,
		MaxOccurrencesPerEvent: j.cfg.ExpandLimit,
	})
	if err != nil {
		return nil, 0, err
	}

	trip := DeriveTrip(expanded.Events, j.analyzer.Resolver(), j.cfg.Trip.Destination, scan, pinned)
	j.logger.Info("refreshing trip analysis",
		zap.String("destination", trip.Destination),
		zap.Time("start", trip.Window.Start),
		zap.Time("end", trip.Window.End),
		zap.Int("events", len(expanded.Events)))

	started := time.Now()
	res, err := j.analyzer.Analyze(tz.Request{
		Events:      expanded.Events,
		Destination: trip.Destination,
		Window:      trip.Window,
	})
	if err != nil {
		return nil, 0, err
	}
	if j.metrics != nil {
		j.metrics.ObserveAnalysis(res, time.Since(started))
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, 0, fmt.Errorf("refresh: encode result: %w", err)
	}
	if err := j.repo.Set(ctx, store.NewRecord(LatestKey, payload, j.latestTTL())); err != nil {
		return nil, 0, err
	}
	return res, res.EventsConsidered, nil
}

// scanWindow is the range calendars are expanded over: the configured trip,
// or now through the horizon.
func (j *Job) scanWindow() (model.TravelWindow, bool, error) {
	w, ok, err := j.cfg.TripWindow()
	if err != nil {
		return model.TravelWindow{}, false, err
	}
	if ok {
		return w, true, nil
	}
	now := j.now().UTC()
	return model.TravelWindow{Start: now, End: now.AddDate(0, 0, j.cfg.HorizonDays)}, false, nil
}

// DeriveTrip fills in whatever the configuration leaves open. Only trip
// events that name a known city count as evidence: the first one supplies the
// destination, and their span becomes the window unless pinned.
func DeriveTrip(events []model.CalendarEvent, r *tz.Resolver, destination string, window model.TravelWindow, pinned bool) Trip {
	trip := Trip{Destination: destination, Window: window}

	var first, last time.Time
	found := false
	for _, ev := range events {
		if !tz.IsTripEvent(ev, r) {
			continue
		}
		city := tz.ExtractDestination(ev.Location+" "+ev.Summary+" "+ev.Description, r)
		if !r.Known(city) {
			continue
		}
		if trip.Destination == "" {
			trip.Destination = city
		}
		if !found || ev.Start.Instant.Before(first) {
			first = ev.Start.Instant
		}
		if !found || ev.End.Instant.After(last) {
			last = ev.End.Instant
		}
		found = true
	}

	if found && !pinned {
		trip.Window = model.TravelWindow{Start: first, End: last}
	}
	return trip
}

// Sources converts configured calendars into fetch sources. The ID falls
// back to the name, then the URL.
func Sources(cfgs []config.ICSConfig) []ics.Source {
	out := make([]ics.Source, 0, len(cfgs))
	for _, c := range cfgs {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			id = c.Name
		}
		if id == "" {
			id = c.URL
		}
		out = append(out, ics.Source{ID: id, URL: c.URL})
	}
	return out
}

// Latest returns the stored result of the last successful refresh.
func (j *Job) Latest(ctx context.Context) (*store.Record, error) {
	return j.repo.Get(ctx, LatestKey)
}

// latestTTL is how long LatestKey lives: cache.ttl, stretched to two refresh
// intervals so the record outlasts the gap until the next run.
func (j *Job) latestTTL() time.Duration {
	ttl := j.cfg.Cache.TTL
	sched, err := cron.ParseStandard(j.cfg.RefreshCron)
	if err != nil {
		return ttl
	}
	next := sched.Next(j.now())
	if interval := sched.Next(next).Sub(next); 2*interval > ttl {
		ttl = 2 * interval
	}
	return ttl
}

// Schedule runs the job on spec until the returned cron is stopped.
// Overlapping runs are skipped.
func (j *Job) Schedule(spec string, timeout time.Duration) (*cron.Cron, error) {
	cl := cronLogger{j.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, _ = j.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("refresh: bad schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Sugar().Debugw("cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Sugar().Errorw("cron: "+msg, append(kv, "error", err)...)
}
