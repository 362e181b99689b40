// ============================================================================
// Sparrow Scheduler - Placement Policy State Machines
// ============================================================================
//
// Package: internal/scheduler
// File: scheduler.go
// Function: Runs one scheduler's J jobs against a fleet of workers under
// BATCH, LATE, or LATEPRO placement (spec.md §4.2). Shared unmodified by the
// simulation and live realizations: the only thing that differs between
// them is which clock.Clock and WorkerHandle implementations are injected.
//
// Grounded on:
//   - _examples/ChuLiYu-raft-recovery/internal/controller/controller.go for
//     the slog lifecycle-logging idiom and the 4-loop orchestration shape
//     (here: one loop per job instead of per raft role).
//   - _examples/ChuLiYu-raft-recovery/internal/worker/worker_pool.go for the
//     channel-based fan-out/collect pattern (taskCh/resultCh), adapted here
//     as the per-round result slice.
//   - _examples/original_source/Python_codes/batch.py, latepro.py for the
//     exact BATCH/LATE/LATEPRO state machine steps.
//
// Fan-out & the virtual clock:
//   golang.org/x/sync/errgroup gives the "task-group / join semantics" the
//   design notes call for (spec.md §9). Under VirtualClock, every goroutine
//   that calls clock.Sleep must have been spawned via clock.Go so the
//   quiescence barrier's active counter stays balanced; errgroup's own
//   goroutine cannot be registered that way. spawn() bridges the two: the
//   errgroup goroutine blocks on a plain channel while the clock-registered
//   goroutine does the actual (sleep-bearing) work. Under RealClock this
//   bridge costs one extra goroutine hop and nothing else. Run itself is
//   the process clock.Go actually tracks, and it spends its whole body
//   (every job, every round's errgroup.Wait, every task's completion wait)
//   blocked on exactly such channels and waitgroups rather than sleeping,
//   so it runs under clock.Block: without that, its one token would stay
//   held from the first job to the last and the quiescence barrier would
//   never see active==0.
//
// ============================================================================

package scheduler

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/sparrow/internal/clock"
	"github.com/ChuLiYu/sparrow/internal/metrics"
	"github.com/ChuLiYu/sparrow/internal/sampler"
	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

// WorkerHandle is everything a scheduler needs from a worker, in place of a
// concrete *worker.Worker dependency. The live variant satisfies this with
// an internal/rpc client stub; the simulation variant passes *worker.Worker
// directly (spec.md §5: "two equivalent realizations").
type WorkerHandle interface {
	Identity() types.WorkerID
	Probe() int
	Request(jobid types.JobID, tid types.TaskID, sched worker.DoneNotifier, dur time.Duration) types.RID
	Assign(jobid types.JobID, tid types.TaskID, sched worker.DoneNotifier, dur time.Duration)
	AssignRid(rid types.RID) error
	Cancel(rid types.RID)
}

type taskKey struct {
	jobid types.JobID
	tid   types.TaskID
}

// Scheduler runs J jobs of one placement policy against a shared worker
// fleet (spec.md §4.2).
type Scheduler struct {
	Name string
	Mode types.Mode

	workers []WorkerHandle
	clock   clock.Clock
	sampler sampler.Sampler
	rng     *rand.Rand // shared with sampler; also used for worker-subset draws
	nd      time.Duration
	d       int // probe ratio
	log     *slog.Logger

	mu         sync.Mutex
	waitEvents map[taskKey]chan struct{}

	rpc types.RPCCounters
	res types.ReservationCounters

	completions []time.Duration
	tasksPerJob []int
}

// Config bundles the parameters spec.md §6 enumerates for one scheduler.
type Config struct {
	Name      string
	Mode      types.Mode
	Workers   []WorkerHandle
	Clock     clock.Clock
	JobSize   types.JobSizeKind
	JobParams types.JobSizeParams
	ProbeD    int
	NetDelay  time.Duration
	Seed      int64
	Logger    *slog.Logger
}

// New builds a Scheduler. Seed MUST already be perturbed per-scheduler
// (spec.md §6: "seed + hash(name) or equivalent deterministic perturbation")
// by the caller; New does not reperturb it.
func New(cfg Config) (*Scheduler, error) {
	if cfg.ProbeD < 1 {
		return nil, &types.ConfigError{Field: "probe_ratio", Reason: "must be >= 1"}
	}
	if len(cfg.Workers) == 0 {
		return nil, &types.ConfigError{Field: "workers", Reason: "must be non-empty"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	s, err := sampler.New(cfg.JobSize, cfg.JobParams, rng)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		Name:       cfg.Name,
		Mode:       cfg.Mode,
		workers:    cfg.Workers,
		clock:      cfg.Clock,
		sampler:    s,
		rng:        rng,
		nd:         cfg.NetDelay,
		d:          cfg.ProbeD,
		log:        logger,
		waitEvents: make(map[taskKey]chan struct{}),
	}, nil
}

// Run executes jobs jobs sequentially (spec.md §5: "Across jobs in one
// scheduler: strictly sequential") and returns the scheduler's report.
// Across schedulers in a driver, concurrency comes from each Scheduler.Run
// being spawned on its own clock.Go process; Run itself never spawns one,
// so it runs its whole body under clock.Block: every job it drives blocks
// repeatedly on worker goroutines rather than sleeping itself, and without
// Block that wait would hold this process's token for the entire run.
func (s *Scheduler) Run(jobs int) types.SchedulerReport {
	s.log.Info("scheduler starting", "name", s.Name, "mode", s.Mode, "jobs", jobs)
	s.clock.Block(func() {
		for i := 0; i < jobs; i++ {
			jobid := types.JobID(fmt.Sprintf("%s-J%d", s.Name, i))
			completion := s.runJob(jobid)
			s.completions = append(s.completions, completion)
		}
	})
	s.log.Info("scheduler done", "name", s.Name, "jobs", jobs)
	return s.report()
}

// runJob drives one job through the configured placement policy end to end
// and returns its wall-clock completion (spec.md §4.2 "Completion").
func (s *Scheduler) runJob(jobid types.JobID) time.Duration {
	mJob := s.sampler.Sample()
	sampleN := len(s.workers)
	if want := s.d * mJob; want < sampleN {
		sampleN = want
	}
	if sampleN < 1 {
		sampleN = 1
	}

	s.mu.Lock()
	s.tasksPerJob = append(s.tasksPerJob, mJob)
	s.mu.Unlock()

	start := s.clock.Now()
	chans := s.registerWaits(jobid, 0, mJob)

	switch s.Mode {
	case types.ModeBatch:
		s.runBatch(jobid, mJob, sampleN)
	case types.ModeLate:
		s.runLate(jobid, mJob, sampleN, false)
	case types.ModeLatePro:
		s.runLate(jobid, mJob, sampleN, true)
	default:
		panic(fmt.Sprintf("scheduler: invariant violation: unknown mode %q", s.Mode))
	}

	for _, ch := range chans {
		<-ch
	}
	return s.clock.Now() - start
}

// --- BATCH -------------------------------------------------------------

func (s *Scheduler) runBatch(jobid types.JobID, mJob, sampleN int) {
	indices := s.drawWorkers(sampleN)
	qs := s.probeRound(indices)
	order := sortByQueueLen(indices, qs)
	chosen := cyclicSelect(order, mJob)
	s.assignRound(jobid, chosen, 0)
}

// --- LATE / LATEPRO ------------------------------------------------------

func (s *Scheduler) runLate(jobid types.JobID, mJob, sampleN int, proactive bool) {
	indices := s.drawWorkers(sampleN)
	raw := s.requestRound(jobid, indices)

	// A timed-out REQUEST (live variant only) comes back with an empty rid
	// and never reached res_created; drop it before selection (spec.md §7:
	// "for REQUEST/ASSIGN it reduces the reservation pool").
	reqs := make([]reservationResult, 0, len(raw))
	for _, r := range raw {
		if r.rid != "" {
			reqs = append(reqs, r)
		}
	}

	chosen := reqs
	unused := []reservationResult(nil)
	if len(reqs) > mJob {
		chosen = reqs[:mJob]
		unused = append(unused, reqs[mJob:]...)
	}

	s.assignRidRound(chosen)

	if proactive && len(unused) > 0 {
		s.cancelRound(unused)
	}

	shortfall := mJob - len(chosen)
	if shortfall > 0 {
		s.log.Warn("reservation shortfall, falling back to probe/assign",
			"scheduler", s.Name, "jobid", jobid, "shortfall", shortfall)
		fallbackIndices := s.drawWorkers(sampleN)
		qs := s.probeRound(fallbackIndices)
		order := sortByQueueLen(fallbackIndices, qs)
		fallbackChosen := cyclicSelect(order, shortfall)
		s.assignRound(jobid, fallbackChosen, len(chosen))
	}
}

// --- rounds ----------------------------------------------------------------

// spawn bridges an errgroup goroutine into one tracked by the clock, so any
// clock.Sleep inside fn keeps the virtual clock's quiescence accounting
// correct under VirtualClock, and costs nothing extra under RealClock.
func (s *Scheduler) spawn(fn func() error) func() error {
	return func() error {
		done := make(chan struct{})
		var err error
		s.clock.Go(func() {
			defer close(done)
			err = fn()
		})
		<-done
		return err
	}
}

func (s *Scheduler) drawWorkers(n int) []int {
	perm := s.rng.Perm(len(s.workers))
	if n > len(perm) {
		n = len(perm)
	}
	return perm[:n]
}

func (s *Scheduler) probeRound(indices []int) []int {
	s.bumpCounter(&s.rpc.Probe, len(indices))
	qs := make([]int, len(indices))
	var g errgroup.Group
	for pos, wi := range indices {
		pos, wi := pos, wi
		g.Go(s.spawn(func() error {
			s.clock.Sleep(s.nd)
			q := s.workers[wi].Probe()
			s.clock.Sleep(s.nd)
			qs[pos] = q
			return nil
		}))
	}
	_ = g.Wait()
	return qs
}

type reservationResult struct {
	workerIdx int
	tid       types.TaskID
	rid       types.RID
}

func (s *Scheduler) requestRound(jobid types.JobID, indices []int) []reservationResult {
	s.bumpCounter(&s.rpc.Request, len(indices))
	results := make([]reservationResult, len(indices))
	var g errgroup.Group
	for pos, wi := range indices {
		pos, wi := pos, wi
		tid := types.TaskID(fmt.Sprintf("T%d", pos))
		g.Go(s.spawn(func() error {
			s.clock.Sleep(s.nd)
			rid := s.workers[wi].Request(jobid, tid, s, 0)
			s.clock.Sleep(s.nd)
			results[pos] = reservationResult{workerIdx: wi, tid: tid, rid: rid}
			return nil
		}))
	}
	_ = g.Wait()

	var created int64
	for _, r := range results {
		if r.rid != "" {
			created++
		}
	}
	s.mu.Lock()
	s.res.Created += created
	s.mu.Unlock()
	return results
}

func (s *Scheduler) assignRound(jobid types.JobID, indices []int, taskOffset int) {
	s.bumpCounter(&s.rpc.Assign, len(indices))
	var g errgroup.Group
	for pos, wi := range indices {
		pos, wi := pos, wi
		tid := types.TaskID(fmt.Sprintf("T%d", taskOffset+pos))
		g.Go(s.spawn(func() error {
			s.clock.Sleep(s.nd)
			s.workers[wi].Assign(jobid, tid, s, 0)
			s.clock.Sleep(s.nd)
			return nil
		}))
	}
	_ = g.Wait()
}

func (s *Scheduler) assignRidRound(chosen []reservationResult) {
	s.bumpCounter(&s.rpc.AssignRid, len(chosen))
	var g errgroup.Group
	for _, r := range chosen {
		r := r
		g.Go(s.spawn(func() error {
			s.clock.Sleep(s.nd)
			err := s.workers[r.workerIdx].AssignRid(r.rid)
			s.clock.Sleep(s.nd)
			if err == nil {
				s.mu.Lock()
				s.res.Used++
				s.mu.Unlock()
			} else {
				s.log.Debug("assign_rid missed reservation", "scheduler", s.Name, "rid", r.rid)
			}
			return nil
		}))
	}
	_ = g.Wait()
}

func (s *Scheduler) cancelRound(unused []reservationResult) {
	s.bumpCounter(&s.rpc.Cancel, len(unused))
	s.mu.Lock()
	s.res.Wasted += int64(len(unused))
	s.mu.Unlock()
	var g errgroup.Group
	for _, r := range unused {
		r := r
		g.Go(s.spawn(func() error {
			s.clock.Sleep(s.nd)
			s.workers[r.workerIdx].Cancel(r.rid)
			s.clock.Sleep(s.nd)
			return nil
		}))
	}
	_ = g.Wait()
}

// bumpCounter increments both rpc_total and the per-kind counter exactly
// once per RPC, before the first network delay (spec.md §4.2 "Counter
// discipline").
func (s *Scheduler) bumpCounter(kind *int64, n int) {
	s.mu.Lock()
	*kind += int64(n)
	s.rpc.Total += int64(n)
	s.mu.Unlock()
}

// --- selection helpers -----------------------------------------------------

type probed struct {
	workerIdx int
	q         int
}

// sortByQueueLen pairs each drawn worker index with its probed queue length
// and sorts ascending by q (spec.md §4.2 BATCH step 3; stable secondary
// order is explicitly irrelevant).
func sortByQueueLen(indices, qs []int) []int {
	pairs := make([]probed, len(indices))
	for i, wi := range indices {
		pairs[i] = probed{workerIdx: wi, q: qs[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].q < pairs[j].q })

	order := make([]int, len(pairs))
	for i, p := range pairs {
		order[i] = p.workerIdx
	}
	return order
}

// cyclicSelect takes entries 0..m-1 of sorted, cycling through it when
// m exceeds its length (spec.md §4.2 BATCH step 4: "deliberate ... reuse").
func cyclicSelect(sorted []int, m int) []int {
	if len(sorted) == 0 {
		return nil
	}
	out := make([]int, m)
	for i := 0; i < m; i++ {
		out[i] = sorted[i%len(sorted)]
	}
	return out
}

// --- completion notification -------------------------------------------

// registerWaits installs one-shot completion channels for tasks
// T{offset}..T{offset+n-1} of jobid.
func (s *Scheduler) registerWaits(jobid types.JobID, offset, n int) []chan struct{} {
	chans := make([]chan struct{}, n)
	s.mu.Lock()
	for i := 0; i < n; i++ {
		ch := make(chan struct{})
		chans[i] = ch
		s.waitEvents[taskKey{jobid, types.TaskID(fmt.Sprintf("T%d", offset+i))}] = ch
	}
	s.mu.Unlock()
	return chans
}

// NotifyDone implements worker.DoneNotifier. Firing an already-fired or
// unknown (jobid, tid) is a no-op (spec.md §4.2 "duplicates are tolerated";
// §7 "DONE for unknown (jobid, tid) ... logged and dropped").
func (s *Scheduler) NotifyDone(jobid types.JobID, tid types.TaskID) error {
	key := taskKey{jobid, tid}
	s.mu.Lock()
	ch, ok := s.waitEvents[key]
	if ok {
		delete(s.waitEvents, key)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debug("done for unknown or already-fired task", "scheduler", s.Name, "jobid", jobid, "tid", tid)
		return nil
	}
	close(ch)
	return nil
}

// --- reporting ---------------------------------------------------------

func (s *Scheduler) report() types.SchedulerReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := len(s.completions)
	var rpcPerJob float64
	if completed > 0 {
		rpcPerJob = float64(s.rpc.Total) / float64(completed)
	}

	var tasksAvg float64
	for _, m := range s.tasksPerJob {
		tasksAvg += float64(m)
	}
	if len(s.tasksPerJob) > 0 {
		tasksAvg /= float64(len(s.tasksPerJob))
	}

	return types.SchedulerReport{
		Name:           s.Name,
		Mode:           s.Mode,
		CompletionAvg:  metrics.Mean(s.completions),
		P95:            metrics.P95(s.completions),
		P99:            metrics.P99(s.completions),
		RPCPerJob:      rpcPerJob,
		RPC:            s.rpc,
		Reservations:   s.res,
		CompletedJobs:  completed,
		TasksAvgPerJob: tasksAvg,
	}
}

// Counters exposes the raw RPC/reservation counters for invariant tests
// (spec.md §8, e.g. "rpc_total = probe + assign + request + assign_rid +
// cancel").
func (s *Scheduler) Counters() (types.RPCCounters, types.ReservationCounters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpc, s.res
}
