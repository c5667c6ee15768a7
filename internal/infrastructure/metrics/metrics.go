// Package metrics exposes league measurements to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "league"

// LeagueMetrics holds the Prometheus collectors of the league engine.
// It implements engine.Observer.
type LeagueMetrics struct {
	EventsProcessed  *prometheus.CounterVec
	Rollovers        *prometheus.CounterVec
	RolloverDuration prometheus.Histogram
	OpenTalliesGauge prometheus.Gauge
	EventsPublished  *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	HandlerFailures  *prometheus.CounterVec
	JobRuns          *prometheus.CounterVec
}

// NewLeagueMetrics creates and registers the league metrics on the given registry.
func NewLeagueMetrics(reg prometheus.Registerer) *LeagueMetrics {
	m := &LeagueMetrics{
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Activity events processed, by outcome (counted or reject reason).",
		}, []string{"outcome"}),
		Rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollovers_total",
			Help:      "Rollover attempts, by outcome.",
		}, []string{"outcome"}),
		RolloverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollover_duration_seconds",
			Help:      "Duration of the rollover transaction in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		OpenTalliesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_round_tallies",
			Help:      "Number of participants with a tally in the open round.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_events_published_total",
			Help:      "Domain events published on the bus, by type.",
		}, []string{"event_type"}),
		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Duration of event subscribers in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Failed event subscriber runs, by event type.",
		}, []string{"event_type"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs, by job and status.",
		}, []string{"job", "status"}),
	}

	reg.MustRegister(
		m.EventsProcessed,
		m.Rollovers,
		m.RolloverDuration,
		m.OpenTalliesGauge,
		m.EventsPublished,
		m.HandlerDuration,
		m.HandlerFailures,
		m.JobRuns,
	)
	return m
}

// EventProcessed implements engine.Observer.
func (m *LeagueMetrics) EventProcessed(outcome string) {
	m.EventsProcessed.WithLabelValues(outcome).Inc()
}

// RolloverFinished implements engine.Observer.
func (m *LeagueMetrics) RolloverFinished(outcome string, took time.Duration) {
	m.Rollovers.WithLabelValues(outcome).Inc()
	m.RolloverDuration.Observe(took.Seconds())
}

// OpenTallies implements engine.Observer.
func (m *LeagueMetrics) OpenTallies(n int) {
	m.OpenTalliesGauge.Set(float64(n))
}

// JobFinished records a scheduler job run.
func (m *LeagueMetrics) JobFinished(job string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
}

// EventPublished implements messaging.BusObserver.
func (m *LeagueMetrics) EventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// HandlerFinished implements messaging.BusObserver.
func (m *LeagueMetrics) HandlerFinished(eventType string, took time.Duration, ok bool) {
	m.HandlerDuration.WithLabelValues(eventType).Observe(took.Seconds())
	if !ok {
		m.HandlerFailures.WithLabelValues(eventType).Inc()
	}
}
