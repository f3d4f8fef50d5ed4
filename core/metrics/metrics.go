// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TracksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "raplab_tracks_created_total", Help: "Tracks created"},
		[]string{"artist"},
	)
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "raplab_pipeline_steps_total", Help: "Pipeline steps by outcome"},
		[]string{"step", "outcome"},
	)
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raplab_pipeline_step_duration_seconds",
			Help:    "Pipeline step time",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60, 180},
		},
		[]string{"step"},
	)
	QueueClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "raplab_queue_claimed_total", Help: "Stale queue entries picked up by the consumer"},
	)
	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "raplab_live_connections", Help: "Open track-event websocket connections"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "raplab_rate_limited_total", Help: "Requests rejected by the per-user limiter"},
	)
)

func init() {
	prometheus.MustRegister(TracksCreated, StepsTotal, StepDuration, QueueClaimed, LiveConnections, RateLimited)
}
