package metrics

// ============================================================================
// Metrics Test File
// Purpose: Verify the quantile helper (spec.md §4.4) and run aggregation.
// ============================================================================

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ChuLiYu/sparrow/internal/clock"
	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

func TestPercentileSmallNClampsIndex(t *testing.T) {
	durations := []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond,
	}
	// n=3 < 100: p95 clamps to index min(94, n-1) = 2, the max value.
	assert.Equal(t, 30*time.Millisecond, P95(durations))
	assert.Equal(t, 30*time.Millisecond, P99(durations))
}

func TestPercentileLargeNInterpolates(t *testing.T) {
	durations := make([]time.Duration, 100)
	for i := range durations {
		durations[i] = time.Duration(i+1) * time.Millisecond
	}
	p95 := P95(durations)
	assert.InDelta(t, float64(95*time.Millisecond), float64(p95), float64(time.Millisecond))
}

func TestMeanOfEmptyIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), Mean(nil))
}

func TestAggregateComputesUtilAndImbalance(t *testing.T) {
	c := clock.NewVirtual()
	durs := worker.DurationPair{Short: 10 * time.Millisecond, Long: 10 * time.Millisecond, HeavyFrac: 0}
	w0 := worker.New("w0", c, durs, 1, 0)
	w1 := worker.New("w1", c, durs, 2, 0)

	w0.Assign("job1", "T0", nil, 0)
	w0.Assign("job1", "T1", nil, 0)
	c.Run(time.Second)

	report := Aggregate(types.ModeBatch, 100*time.Millisecond,
		[]types.SchedulerReport{{Name: "s0", CompletionAvg: 20 * time.Millisecond, RPCPerJob: 2}},
		[]*worker.Worker{w0, w1})

	assert.Equal(t, 20*time.Millisecond, report.AvgCompletion)
	assert.Equal(t, float64(2), report.AvgRPCPerJob)
	// w0 ran 2*10ms = 20ms busy out of 100ms*2 workers = 200ms capacity -> 10%.
	assert.InDelta(t, 10.0, report.WorkerUtilPct, 0.001)
	// both workers idle at end (q=0), so imbalance = (0+1)/(0+1) = 1.
	assert.Equal(t, 1.0, report.Imbalance)
}
