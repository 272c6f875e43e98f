// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	commandsTotalCounter      *prometheus.CounterVec
	commandReplaysCounter     prometheus.Counter
	commandDispatchDuration   prometheus.Histogram
	cobStepsTotalCounter      *prometheus.CounterVec
	cobStepDurationMetric     prometheus.Histogram
	sampledDurationHistograms *prometheus.HistogramVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		commandsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commands_total",
				Help: "Total number of command records reaching a status, by status.",
			},
			[]string{"status"},
		)

		commandReplaysCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "command_idempotent_replays_total",
				Help: "Total number of submissions answered from a stored idempotency-key result.",
			},
		)

		commandDispatchDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "command_dispatch_duration_seconds",
				Help:    "Duration of business handler invocations in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		cobStepsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cob_steps_total",
				Help: "Total number of executed close-of-business steps by outcome.",
			},
			[]string{"outcome"},
		)

		cobStepDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cob_step_duration_seconds",
				Help:    "Duration of close-of-business step executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		sampledDurationHistograms = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sampled_operation_duration_seconds",
				Help:    "Sampled wall-clock durations of keyed operations in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"key"},
		)

		prometheus.MustRegister(
			commandsTotalCounter,
			commandReplaysCounter,
			commandDispatchDuration,
			cobStepsTotalCounter,
			cobStepDurationMetric,
			sampledDurationHistograms,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []string{"PROCESSED", "AWAITING_APPROVAL", "REJECTED"} {
			commandsTotalCounter.WithLabelValues(status)
		}
		for _, outcome := range []string{"success", "failure"} {
			cobStepsTotalCounter.WithLabelValues(outcome)
		}
	})
}

func IncCommandStatus(status string) {
	Init()
	commandsTotalCounter.WithLabelValues(status).Inc()
}

func IncIdempotentReplay() {
	Init()
	commandReplaysCounter.Inc()
}

func ObserveDispatchDuration(d time.Duration) {
	Init()
	commandDispatchDuration.Observe(d.Seconds())
}

func IncCOBStep(outcome string) {
	Init()
	cobStepsTotalCounter.WithLabelValues(outcome).Inc()
}

func ObserveCOBStepDuration(d time.Duration) {
	Init()
	cobStepDurationMetric.Observe(d.Seconds())
}

func ObserveSampledDuration(key string, d time.Duration) {
	Init()
	sampledDurationHistograms.WithLabelValues(key).Observe(d.Seconds())
}
