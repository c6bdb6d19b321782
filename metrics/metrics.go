package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phase label values for StageDuration.
const (
	PhaseCompile = "compile"
	PhaseRun     = "run"
	PhaseTotal   = "total"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyrun_executions_total",
			Help: "Total number of code executions by final outcome",
		},
		[]string{"language", "outcome"}, // outcome: success or an error kind
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polyrun_stage_duration_seconds",
			Help:    "Duration of execution stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"language", "phase"},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyrun_executions_in_flight",
			Help: "Number of executions currently holding a workspace",
		},
	)

	OutputTruncations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyrun_output_truncations_total",
			Help: "Number of captured streams cut at the output cap",
		},
		[]string{"language"},
	)

	WorkspacesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polyrun_workspaces_swept_total",
			Help: "Stale workspaces removed by the start-up sweep",
		},
	)
)
