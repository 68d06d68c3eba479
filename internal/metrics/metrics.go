package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripcal/internal/tz"
)

const namespace = "tripcal"

// Analysis outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeCached  = "cached"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	analyses    *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	duration    prometheus.Summary
	refreshes   *prometheus.CounterVec
	lastRefresh prometheus.Gauge
	tripEvents  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analyses_total",
		Help:      "Trip analyses by outcome.",
	}, []string{"outcome"})
	m.conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflicts_total",
		Help:      "Conflicts reported, by severity and type.",
	}, []string{"severity", "type"})
	m.duration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  namespace,
		Name:       "analysis_duration_seconds",
		Help:       "Time spent analyzing one trip.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})
	m.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_total",
		Help:      "Scheduled calendar refreshes by outcome.",
	}, []string{"outcome"})
	m.lastRefresh = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_refresh_success_timestamp_seconds",
		Help:      "Unix time of the last successful refresh.",
	})
	m.tripEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trip_events",
		Help:      "Events inside the travel window at the last refresh.",
	})

	m.reg.MustRegister(
		m.analyses, m.conflicts, m.duration, m.refreshes, m.lastRefresh, m.tripEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveAnalysis records a completed analysis.
func (m *Metrics) ObserveAnalysis(res *tz.Result, took time.Duration) {
	m.analyses.WithLabelValues(OutcomeOK).Inc()
	m.duration.Observe(took.Seconds())
	for _, c := range res.Conflicts {
		m.conflicts.WithLabelValues(string(c.Severity), string(c.Type)).Inc()
	}
}

// Outcome counts an analysis that did not run the engine to completion
// (cache hit, rejected input, failure).
func (m *Metrics) Outcome(outcome string) {
	m.analyses.WithLabelValues(outcome).Inc()
}

// ObserveRefresh records one scheduled refresh.
func (m *Metrics) ObserveRefresh(err error, events int, at time.Time) {
	if err != nil {
		m.refreshes.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.refreshes.WithLabelValues(OutcomeOK).Inc()
	m.lastRefresh.Set(float64(at.Unix()))
	m.tripEvents.Set(float64(events))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
