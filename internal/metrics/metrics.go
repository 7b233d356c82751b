package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PassBuildDuration tracks the latency of building and signing archives
	PassBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pass_build_duration_seconds",
			Help: "Duration of pass archive build and sign operations in seconds",
			Buckets: []float64{
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
		[]string{"status"}, // success or failure
	)

	// ScansTotal counts processed scan events
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_scans_total",
			Help: "Number of scan events processed",
		},
		[]string{"status"}, // success, rejected or failure
	)

	// RewardsEarnedTotal counts rewards earned across all passes
	RewardsEarnedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_rewards_earned_total",
			Help: "Number of rewards earned",
		},
	)

	// PushAttemptsTotal counts push delivery attempts by outcome
	PushAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_attempts_total",
			Help: "Number of push delivery attempts",
		},
		[]string{"outcome"}, // sent, failed or pruned
	)
)

// RecordPassBuildDuration records the duration of one archive build
func RecordPassBuildDuration(status string, duration float64) {
	PassBuildDuration.WithLabelValues(status).Observe(duration)
}

// RecordScan counts one processed scan event
func RecordScan(status string) {
	ScansTotal.WithLabelValues(status).Inc()
}

// RecordReward counts one earned reward
func RecordReward() {
	RewardsEarnedTotal.Inc()
}

// RecordPushAttempt counts one push delivery attempt
func RecordPushAttempt(outcome string) {
	PushAttemptsTotal.WithLabelValues(outcome).Inc()
}
