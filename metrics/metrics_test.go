package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestExecutionsTotalIsLabelledByOutcome(t *testing.T) {
	before := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("perl", "timeout"))

	ExecutionsTotal.WithLabelValues("perl", "timeout").Inc()

	assert.InDelta(t, before+1, testutil.ToFloat64(ExecutionsTotal.WithLabelValues("perl", "timeout")), 0)
}

func TestInFlightGauge(t *testing.T) {
	before := testutil.ToFloat64(InFlight)

	InFlight.Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(InFlight), 0)

	InFlight.Dec()
	assert.InDelta(t, before, testutil.ToFloat64(InFlight), 0)
}

func TestStageDurationPhases(t *testing.T) {
	for _, phase := range []string{PhaseCompile, PhaseRun, PhaseTotal} {
		StageDuration.WithLabelValues("c", phase).Observe(0.2)
	}

	assert.Equal(t, 3, testutil.CollectAndCount(StageDuration, "polyrun_stage_duration_seconds"))
}
