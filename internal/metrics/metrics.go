package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patze",
			Subsystem: "bridge",
			Name:      "events_emitted_total",
			Help:      "Telemetry envelopes emitted per machine and event type.",
		}, []string{"machine", "type"},
	)
	runTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patze",
			Subsystem: "bridge",
			Name:      "run_transitions_total",
			Help:      "Run lifecycle transitions observed between states.",
		}, []string{"machine", "from", "to"},
	)
	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patze",
			Subsystem: "bridge",
			Name:      "session_transitions_total",
			Help:      "Inferred session lifecycle transitions.",
		}, []string{"machine", "from", "to"},
	)
	trackedRuns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "patze",
			Subsystem: "bridge",
			Name:      "tracked_runs",
			Help:      "Runs currently held in the mapper working set.",
		}, []string{"machine"},
	)
	trackedSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "patze",
			Subsystem: "bridge",
			Name:      "tracked_sessions",
			Help:      "Sessions currently held in the mapper working set.",
		}, []string{"machine"},
	)
	sessionsEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patze",
			Subsystem: "bridge",
			Name:      "sessions_evicted_total",
			Help:      "Terminal sessions pruned by TTL or cap eviction.",
		}, []string{"machine"},
	)
	pollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "patze",
			Subsystem: "bridge",
			Name:      "poll_duration_seconds",
			Help:      "Wall time of one poll cycle including sink dispatch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"machine"},
	)
	sinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patze",
			Subsystem: "bridge",
			Name:      "sink_errors_total",
			Help:      "Envelope deliveries that failed per sink.",
		}, []string{"sink"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		eventsEmitted, runTransitions, sessionTransitions,
		trackedRuns, trackedSessions, sessionsEvicted, pollDuration, sinkErrors,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until Register
// has been called.

func IncEvent(machine, eventType string) {
	if regOK.Load() {
		eventsEmitted.WithLabelValues(machine, eventType).Inc()
	}
}

func RecordRunTransition(machine, from, to string) {
	if regOK.Load() {
		runTransitions.WithLabelValues(machine, from, to).Inc()
	}
}

func RecordSessionTransition(machine, from, to string) {
	if regOK.Load() {
		sessionTransitions.WithLabelValues(machine, from, to).Inc()
	}
}

func SetTrackedRuns(machine string, n int) {
	if regOK.Load() {
		trackedRuns.WithLabelValues(machine).Set(float64(n))
	}
}

func SetTrackedSessions(machine string, n int) {
	if regOK.Load() {
		trackedSessions.WithLabelValues(machine).Set(float64(n))
	}
}

func AddEvicted(machine string, n int) {
	if regOK.Load() && n > 0 {
		sessionsEvicted.WithLabelValues(machine).Add(float64(n))
	}
}

func ObservePollDuration(machine string, seconds float64) {
	if regOK.Load() {
		pollDuration.WithLabelValues(machine).Observe(seconds)
	}
}

func IncSinkError(sink string) {
	if regOK.Load() {
		sinkErrors.WithLabelValues(sink).Inc()
	}
}
