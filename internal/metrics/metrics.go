package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transitions counts session phase changes; result is applied, noop or rejected.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livequiz_session_transitions_total",
			Help: "Session transition requests by event and outcome",
		},
		[]string{"event", "result"},
	)

	// Answers counts answer submissions by outcome: correct, incorrect, late, duplicate.
	Answers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livequiz_answers_total",
			Help: "Answer submissions by outcome",
		},
		[]string{"outcome"},
	)

	// Joins counts join-code resolutions by mode and outcome.
	Joins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livequiz_joins_total",
			Help: "Join code resolutions",
		},
		[]string{"mode", "outcome"},
	)

	// GeneratorCalls counts calls to the quiz content generator.
	GeneratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livequiz_generator_calls_total",
			Help: "Quiz generator calls by outcome",
		},
		[]string{"outcome"},
	)

	GeneratorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livequiz_generator_duration_seconds",
			Help:    "Time spent waiting on the quiz generator",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Subscriptions is the number of open realtime subscriptions.
	Subscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livequiz_subscriptions_current",
			Help: "Open realtime session subscriptions",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
