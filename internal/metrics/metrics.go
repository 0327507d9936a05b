// Package metrics registers the Prometheus collectors for monitoring sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	Recording = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loudmeter_recording",
		Help: "1 while a session is recording, 0 otherwise",
	})
	CurrentLoudness = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loudmeter_current_loudness",
		Help: "Latest loudness reading (0-100)",
	})
	LastScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loudmeter_last_score",
		Help: "Score of the most recently completed session",
	})
)

// Counters
var (
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loudmeter_sessions_started_total",
		Help: "Total sessions that started recording",
	})
	SessionsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loudmeter_sessions_finished_total",
		Help: "Total sessions by outcome (completed, failed, aborted)",
	}, []string{"outcome"})
	SessionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loudmeter_session_failures_total",
		Help: "Total failed sessions by reason",
	}, []string{"reason"})
	PollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loudmeter_poll_errors_total",
		Help: "Total transient amplitude poll errors skipped",
	})
)

// Histograms
var (
	Scores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loudmeter_session_score",
		Help:    "Distribution of completed session scores",
		Buckets: prometheus.LinearBuckets(100, 100, 10),
	})
)

// Session outcomes used as label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
)
