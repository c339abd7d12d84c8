// Package telemetry exposes simulation timing as Prometheus collectors.
// The core packages stay metric-free; the frame driver feeds these.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the per-frame observations of the simulation.
type Metrics struct {
	FrameSeconds   prometheus.Histogram
	UpdateSeconds  prometheus.Histogram
	RebuildSeconds prometheus.Histogram
	FrameTimeAvg   prometheus.Gauge
	Iterations     prometheus.Counter
	TasksSubmitted prometheus.Counter
	Agents         prometheus.Gauge
}

// New registers the simulation collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FrameSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "swarm_frame_seconds",
			Help:    "Wall time of a full simulation frame.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		UpdateSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "swarm_update_seconds",
			Help:    "Wall time of the boid kernel update.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		RebuildSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "swarm_rebuild_seconds",
			Help:    "Wall time of the spatial hash rebuild.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		FrameTimeAvg: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_frame_time_avg_seconds",
			Help: "Mean frame delta over the last ten frames.",
		}),
		Iterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarm_iterations_total",
			Help: "Simulation steps executed.",
		}),
		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarm_pool_tasks_total",
			Help: "Work items submitted to the thread pool.",
		}),
		Agents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_agents",
			Help: "Agent count of the running simulation.",
		}),
	}
}
