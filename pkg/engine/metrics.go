package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is a container of metrics for an engine.
type metrics struct {
	runsTotal  *prometheus.CounterVec
	stepsTotal prometheus.Counter
	tasksTotal prometheus.Counter
	runSeconds prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		runsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "morselflow_engine_runs_total",
			Help: "Total number of graph runs by final status",
		}, []string{"status"}),
		stepsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "morselflow_engine_steps_total",
			Help: "Total number of scheduling steps across all runs",
		}),
		tasksTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "morselflow_engine_node_spawns_total",
			Help: "Total number of node spawns across all scheduling steps",
		}),
		runSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "morselflow_engine_run_seconds",
			Help: "Duration of graph runs",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}
