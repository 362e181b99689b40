package scheduler

// ============================================================================
// Scheduler Test File
// Purpose: Exercise the BATCH/LATE/LATEPRO state machines against real
// worker.Worker instances driven by clock.VirtualClock, checking the
// concrete scenarios and counter invariants of spec.md §8.
// ============================================================================

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/sparrow/internal/clock"
	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

func shortDur(d time.Duration) worker.DurationPair {
	return worker.DurationPair{Short: d, Long: d, HeavyFrac: 0}
}

func makeWorkers(c *clock.VirtualClock, n int, dur time.Duration) []WorkerHandle {
	handles := make([]WorkerHandle, n)
	for i := 0; i < n; i++ {
		w := worker.New(types.WorkerID(string(rune('a'+i))), c, shortDur(dur), int64(i+1), 0)
		handles[i] = w
	}
	return handles
}

// Scenario 1: single worker, single scheduler, BATCH, 1 job of 1 task,
// d=1, nd=1ms, short task 30ms. Completion ~= 4*nd + 30 = 34ms; rpc_total=2.
func TestScenarioSingleWorkerBatch(t *testing.T) {
	c := clock.NewVirtual()
	// The worker applies the same 1ms as its pre-notify delay, the fourth nd.
	workers := []WorkerHandle{worker.New("a", c, shortDur(30*time.Millisecond), 1, time.Millisecond)}

	s, err := New(Config{
		Name: "s0", Mode: types.ModeBatch, Workers: workers, Clock: c,
		JobSize: types.JobSizeFixed, JobParams: types.JobSizeParams{Fixed: 1},
		ProbeD: 1, NetDelay: time.Millisecond, Seed: 1,
	})
	require.NoError(t, err)

	var report types.SchedulerReport
	c.Go(func() { report = s.Run(1) })
	c.Run(10 * time.Second)

	require.Equal(t, 1, report.CompletedJobs)
	assert.Equal(t, 34*time.Millisecond, report.CompletionAvg)
	rpc, _ := s.Counters()
	assert.Equal(t, int64(2), rpc.Total)
	assert.Equal(t, int64(1), rpc.Probe)
	assert.Equal(t, int64(1), rpc.Assign)
	assert.Equal(t, int64(0), rpc.Request)
	assert.Equal(t, int64(0), rpc.AssignRid)
	assert.Equal(t, int64(0), rpc.Cancel)
}

// Scenario 3: four workers, LATEPRO, 1 job of 2 tasks, d=3, nd=1ms.
// Exactly min(4,6)=4 REQUESTs, 2 ASSIGN_RIDs, 2 CANCELs;
// res_created=4, res_used=2, res_wasted=2.
func TestScenarioLateProReservationAccounting(t *testing.T) {
	c := clock.NewVirtual()
	workers := makeWorkers(c, 4, 10*time.Millisecond)

	s, err := New(Config{
		Name: "s0", Mode: types.ModeLatePro, Workers: workers, Clock: c,
		JobSize: types.JobSizeFixed, JobParams: types.JobSizeParams{Fixed: 2},
		ProbeD: 3, NetDelay: time.Millisecond, Seed: 1,
	})
	require.NoError(t, err)

	c.Go(func() { s.Run(1) })
	c.Run(10 * time.Second)

	rpc, res := s.Counters()
	assert.Equal(t, int64(4), rpc.Request)
	assert.Equal(t, int64(2), rpc.AssignRid)
	assert.Equal(t, int64(2), rpc.Cancel)
	assert.Equal(t, int64(0), rpc.Assign)
	assert.Equal(t, int64(4), res.Created)
	assert.Equal(t, int64(2), res.Used)
	assert.Equal(t, int64(2), res.Wasted)
}

// Scenario 5: BATCH, m_job=5, sample_n=3: the sorted worker list is reused
// cyclically (sorted[0,1,2,0,1]), so exactly 5 ASSIGNs are issued against 3
// probed workers.
func TestScenarioBatchCyclicReuse(t *testing.T) {
	c := clock.NewVirtual()
	workers := makeWorkers(c, 3, time.Millisecond)

	s, err := New(Config{
		Name: "s0", Mode: types.ModeBatch, Workers: workers, Clock: c,
		JobSize: types.JobSizeFixed, JobParams: types.JobSizeParams{Fixed: 5},
		ProbeD: 1, NetDelay: 0, Seed: 1,
	})
	require.NoError(t, err)

	c.Go(func() { s.Run(1) })
	c.Run(10 * time.Second)

	rpc, _ := s.Counters()
	assert.Equal(t, int64(3), rpc.Probe)
	assert.Equal(t, int64(5), rpc.Assign)
}

// LATE mode must never issue CANCEL (spec.md §8: "LATE mode: cancel = 0").
func TestLateModeNeverCancels(t *testing.T) {
	c := clock.NewVirtual()
	workers := makeWorkers(c, 4, 5*time.Millisecond)

	s, err := New(Config{
		Name: "s0", Mode: types.ModeLate, Workers: workers, Clock: c,
		JobSize: types.JobSizeFixed, JobParams: types.JobSizeParams{Fixed: 2},
		ProbeD: 2, NetDelay: 0, Seed: 7,
	})
	require.NoError(t, err)

	c.Go(func() { s.Run(3) })
	c.Run(10 * time.Second)

	rpc, _ := s.Counters()
	assert.Equal(t, int64(0), rpc.Cancel)
	assert.Equal(t, int64(0), rpc.Assign, "no fallback expected when every worker grants a reservation")
}

// rpc_total must always equal the sum of the per-kind counters
// (spec.md §8).
func TestRPCTotalEqualsSumOfKinds(t *testing.T) {
	c := clock.NewVirtual()
	workers := makeWorkers(c, 6, 2*time.Millisecond)

	s, err := New(Config{
		Name: "s0", Mode: types.ModeLatePro, Workers: workers, Clock: c,
		JobSize: types.JobSizeMixed, JobParams: types.JobSizeParams{},
		ProbeD: 2, NetDelay: time.Millisecond, Seed: 42,
	})
	require.NoError(t, err)

	c.Go(func() { s.Run(20) })
	c.Run(time.Minute)

	rpc, _ := s.Counters()
	sum := rpc.Probe + rpc.Assign + rpc.Request + rpc.AssignRid + rpc.Cancel
	assert.Equal(t, rpc.Total, sum)
}
