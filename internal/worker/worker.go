// ============================================================================
// Sparrow Worker - Task Execution Node
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: A single cluster node. Tracks its own running-task count and
// outstanding reservations, executes tasks asynchronously on the shared
// clock.Clock, and best-effort notifies the owning scheduler on completion.
//
// Grounded on _examples/ChuLiYu-raft-recovery/internal/worker/worker.go's
// goroutine-per-task execution idiom and on
// _examples/original_source/Python_codes/worker.py /
// _examples/original_source/worker.py for the Probe/Request/Assign/
// AssignRid/Cancel RPC semantics (reservation map, running count R,
// busy_time, task_metrics, notify_done).
//
// Queue length (spec.md §3, "Queue length"):
//   qlen = running + len(reservations)
//
// Concurrency:
//   All mutable state is behind mu. Task execution runs in a clock.Go
//   goroutine so both the simulation and live realizations share this code;
//   the only difference is which Clock implementation is injected.
//
// ============================================================================

package worker

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ChuLiYu/sparrow/internal/clock"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

// DoneNotifier is the minimal callback a worker holds on a reservation or an
// in-flight task, in place of a pointer back to the owning scheduler. This
// avoids a worker<->scheduler reference cycle: a worker only ever needs to
// report "this task finished", never anything else about the scheduler.
type DoneNotifier interface {
	NotifyDone(jobid types.JobID, tid types.TaskID) error
}

// ErrUnknownReservation is returned by AssignRid for an rid the
// worker has no record of (already used, already cancelled, or never
// issued by this worker).
var ErrUnknownReservation = errors.New("worker: unknown reservation id")

// DurationPair is a two-point service-time distribution: short with
// probability 1-HeavyFrac, long with probability HeavyFrac (spec.md §4.1
// "Duration sampling"). original_source/Python_codes/worker.py samples
// 5ms/50ms at a 90/10 split for the simulation variant while
// original_source/scheduler.py drives the live socket variant at 30ms/400ms;
// both are exposed here as a configurable pair rather than a hardcoded
// constant (SPEC_FULL.md §11).
type DurationPair struct {
	Short     time.Duration
	Long      time.Duration
	HeavyFrac float64
}

// DefaultSimDurations matches the simulation variant's default split.
func DefaultSimDurations() DurationPair {
	return DurationPair{Short: 5 * time.Millisecond, Long: 50 * time.Millisecond, HeavyFrac: 0.1}
}

// DefaultLiveDurations is the 30ms/400ms split of the original live socket
// variant. The sparrow worker and scheduler commands do not use it; they
// take their pair from the config file's durations section.
func DefaultLiveDurations() DurationPair {
	return DurationPair{Short: 30 * time.Millisecond, Long: 400 * time.Millisecond, HeavyFrac: 0.1}
}

func (p DurationPair) sample(rng *rand.Rand) time.Duration {
	if rng.Float64() < p.HeavyFrac {
		return p.Long
	}
	return p.Short
}

// reservation is a REQUEST grant not yet consumed by ASSIGN_RID or CANCEL.
type reservation struct {
	jobid     types.JobID
	tid       types.TaskID
	dur       time.Duration
	sched     DoneNotifier
	createdAt time.Duration
}

// Worker is one cluster node under test. Safe for concurrent RPC dispatch.
type Worker struct {
	ID types.WorkerID

	clock clock.Clock
	durs  DurationPair
	// rng is the worker's own source of service-time noise. It is distinct
	// from any scheduler's RNG (spec.md §6): job-size and duration sampling
	// are independent concerns.
	rng *rand.Rand
	nd  time.Duration // pre-notify network delay applied after a task finishes

	mu           sync.Mutex
	running      int
	reservations map[types.RID]*reservation
	busyTime     time.Duration
	taskMetrics  []types.TaskRecord
}

// New creates a Worker. nd is the simulated network delay incurred before a
// completion notification reaches the scheduler (spec.md §5, "pre-notify
// delay"); pass 0 for the live variant, where the delay is the real network.
func New(id types.WorkerID, c clock.Clock, durs DurationPair, seed int64, nd time.Duration) *Worker {
	return &Worker{
		ID:           id,
		clock:        c,
		durs:         durs,
		rng:          rand.New(rand.NewSource(seed)),
		nd:           nd,
		reservations: make(map[types.RID]*reservation),
	}
}

// Identity returns the worker's stable id, used by callers that only hold a
// WorkerHandle (internal/scheduler) for logging and selection bookkeeping.
func (w *Worker) Identity() types.WorkerID { return w.ID }

// Probe reports the worker's current queue length (spec.md §4.1 point 1).
func (w *Worker) Probe() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running + len(w.reservations)
}

// Request reserves capacity for a task without starting it (spec.md §4.1
// point 2, used by LATE and LATEPRO). If dur is zero the worker samples its
// own duration on REQUEST, matching the simulation variant
// (original_source/Python_codes/worker.py); a non-zero dur is honored
// as-is, matching the live variant where the scheduler supplies it on the
// wire (spec.md §6).
func (w *Worker) Request(jobid types.JobID, tid types.TaskID, sched DoneNotifier, dur time.Duration) types.RID {
	if dur <= 0 {
		dur = w.durs.sample(w.rng)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	rid := w.freshRID()
	w.reservations[rid] = &reservation{
		jobid:     jobid,
		tid:       tid,
		dur:       dur,
		sched:     sched,
		createdAt: w.clock.Now(),
	}
	return rid
}

// Assign starts a task immediately with a freshly sampled duration
// (spec.md §4.1 point 3, BATCH only). A non-zero dur is honored as supplied
// (live variant wire message carries dur_ms); zero triggers a fresh sample
// (simulation variant).
func (w *Worker) Assign(jobid types.JobID, tid types.TaskID, sched DoneNotifier, dur time.Duration) {
	if dur <= 0 {
		dur = w.durs.sample(w.rng)
	}

	w.mu.Lock()
	w.running++
	assignedAt := w.clock.Now()
	w.mu.Unlock()

	w.execute(jobid, tid, sched, dur, assignedAt)
}

// AssignRid converts an outstanding reservation into a running task,
// preserving the reservation's createdAt as assigned_at (spec.md §4.1
// point 4: "assigned_at is the time the reservation was created, not the
// time AssignRid is called" — this is load-bearing for LATE/LATEPRO queueing
// delay accounting and must not be "corrected").
func (w *Worker) AssignRid(rid types.RID) error {
	w.mu.Lock()
	res, ok := w.reservations[rid]
	if !ok {
		w.mu.Unlock()
		return ErrUnknownReservation
	}
	delete(w.reservations, rid)
	w.running++
	w.mu.Unlock()

	w.execute(res.jobid, res.tid, res.sched, res.dur, res.createdAt)
	return nil
}

// Cancel discards an outstanding reservation without running it
// (spec.md §4.1 point 5). Cancelling an rid that is unknown (already
// consumed, already cancelled, or never issued here) is not an error:
// LATEPRO cancels in bulk and a race against AssignRid is expected.
func (w *Worker) Cancel(rid types.RID) {
	w.mu.Lock()
	delete(w.reservations, rid)
	w.mu.Unlock()
}

// BusyTime and TaskMetrics are read by the metrics aggregator at run end.

// BusyTime returns cumulative task execution time, for worker utilization
// (spec.md §4.4).
func (w *Worker) BusyTime() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busyTime
}

// TaskMetrics returns a copy of every completed task's record.
func (w *Worker) TaskMetrics() []types.TaskRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]types.TaskRecord, len(w.taskMetrics))
	copy(out, w.taskMetrics)
	return out
}

// execute runs one task asynchronously: sleeps dur virtual/real time,
// records the task, then applies the pre-notify delay before calling back.
// The callback failure is suppressed (spec.md §4.1: "best-effort; a failed
// notification does not retry and does not affect worker state"), matching
// a dropped TCP DONE message in the live variant.
func (w *Worker) execute(jobid types.JobID, tid types.TaskID, sched DoneNotifier, dur, assignedAt time.Duration) {
	w.clock.Go(func() {
		start := w.clock.Now()
		w.clock.Sleep(dur)
		end := w.clock.Now()

		w.mu.Lock()
		w.running--
		w.busyTime += end - start
		w.taskMetrics = append(w.taskMetrics, types.TaskRecord{
			JobID:    jobid,
			TaskID:   tid,
			Duration: dur,
			Start:    start,
			End:      end,
			Wait:     start - assignedAt,
			Response: end - assignedAt,
		})
		w.mu.Unlock()

		if w.nd > 0 {
			w.clock.Sleep(w.nd)
		}
		if sched != nil {
			_ = sched.NotifyDone(jobid, tid)
		}
	})
}

// freshRID draws an 8-hex-char reservation id (spec.md §4.1 point 2: "8
// random hex chars suffice; collision probability negligible at the scales
// here — treat a collision as a fatal invariant violation"). Caller must
// hold w.mu.
func (w *Worker) freshRID() types.RID {
	const hex = "0123456789abcdef"
	b := make([]byte, 8)
	for i := range b {
		b[i] = hex[w.rng.Intn(16)]
	}
	rid := types.RID(b)
	if _, exists := w.reservations[rid]; exists {
		panic(fmt.Sprintf("worker %s: invariant violation: duplicate reservation id %q", w.ID, rid))
	}
	return rid
}
