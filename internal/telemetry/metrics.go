package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	invocationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapters_invocations_total",
			Help: "Adapter function invocations by outcome",
		},
		[]string{"adapter", "function", "outcome"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adapters_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	submissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapters_submissions_total",
			Help: "Transaction batches handed to a submitter",
		},
		[]string{"mode", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(invocationCounter, stageDuration, submissionCounter)
}

func ObserveInvocation(adapterName, function, outcome string) {
	invocationCounter.WithLabelValues(adapterName, function, outcome).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func ObserveSubmission(mode, outcome string) {
	submissionCounter.WithLabelValues(mode, outcome).Inc()
}
