// ============================================================================
// Sparrow Metrics - Run Aggregation
// ============================================================================
//
// Package: internal/metrics
// File: aggregate.go
// Function: Combines every scheduler's SchedulerReport with every worker's
// end-of-run state into the single AggregateReport spec.md §4.4 and §6
// ("Simulation boundary ... returns the aggregate metrics of §4.4") define
// as a run's output.
//
// ============================================================================

package metrics

import (
	"time"

	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

// Aggregate builds the run-level report. simEnd is the virtual or wall
// clock's value when the run's last job completed.
func Aggregate(mode types.Mode, simEnd time.Duration, schedulers []types.SchedulerReport, workers []*worker.Worker) types.AggregateReport {
	var completions []time.Duration
	var rpcPerJobSum float64
	for _, sr := range schedulers {
		completions = append(completions, sr.CompletionAvg)
		rpcPerJobSum += sr.RPCPerJob
	}

	var waits, resps, services []time.Duration
	var busyTotal time.Duration
	minQ, maxQ := -1, -1
	for _, w := range workers {
		busyTotal += w.BusyTime()
		for _, tm := range w.TaskMetrics() {
			waits = append(waits, tm.Wait)
			resps = append(resps, tm.Response)
			services = append(services, tm.Duration)
		}
		q := w.Probe()
		if minQ < 0 || q < minQ {
			minQ = q
		}
		if maxQ < 0 || q > maxQ {
			maxQ = q
		}
	}
	if minQ < 0 {
		minQ, maxQ = 0, 0
	}

	var utilPct float64
	if simEnd > 0 && len(workers) > 0 {
		utilPct = float64(busyTotal) / (float64(simEnd) * float64(len(workers))) * 100
	}
	imbalance := float64(maxQ+1) / float64(minQ+1)

	var avgRPCPerJob float64
	if len(schedulers) > 0 {
		avgRPCPerJob = rpcPerJobSum / float64(len(schedulers))
	}

	return types.AggregateReport{
		Mode:           mode,
		AvgCompletion:  Mean(completions),
		AvgRPCPerJob:   avgRPCPerJob,
		TaskWaitAvg:    Mean(waits),
		TaskRespAvg:    Mean(resps),
		TaskServiceAvg: Mean(services),
		WorkerUtilPct:  utilPct,
		Imbalance:      imbalance,
		SimTime:        simEnd,
		Schedulers:     schedulers,
	}
}
