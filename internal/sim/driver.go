// ============================================================================
// Sparrow Simulation Driver
// ============================================================================
//
// Package: internal/sim
// File: driver.go
// Function: The single entry point spec.md §6 "Simulation boundary"
// describes: takes the enumerated configuration surface, wires a fresh
// VirtualClock + worker fleet + scheduler fleet, runs them to quiescence,
// and returns the aggregate report of §4.4.
//
// Grounded on _examples/original_source/Python_codes/simulation.py's
// run_simulation (build workers, build schedulers, run threads/processes,
// collect stats) and on _examples/ChuLiYu-raft-recovery/internal/controller
// /controller.go's orchestration-with-slog-logging idiom.
//
// ============================================================================

package sim

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/ChuLiYu/sparrow/internal/clock"
	"github.com/ChuLiYu/sparrow/internal/metrics"
	"github.com/ChuLiYu/sparrow/internal/scheduler"
	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

// Config is spec.md §6's enumerated configuration surface, plus the
// duration-pair knob SPEC_FULL.md §11 adds.
type Config struct {
	NumWorkers       int
	NumSchedulers    int
	JobsPerScheduler int
	ProbeRatio       int
	NetworkDelay     time.Duration
	Mode             types.Mode
	JobSizeKind      types.JobSizeKind
	JobSizeParams    types.JobSizeParams
	Seed             int64
	Durations        worker.DurationPair
	Logger           *slog.Logger
}

func (cfg Config) validate() error {
	if cfg.NumWorkers < 1 {
		return &types.ConfigError{Field: "workers", Reason: "must be >= 1"}
	}
	if cfg.NumSchedulers < 1 {
		return &types.ConfigError{Field: "schedulers", Reason: "must be >= 1"}
	}
	if cfg.JobsPerScheduler < 1 {
		return &types.ConfigError{Field: "jobs", Reason: "must be >= 1"}
	}
	if cfg.ProbeRatio < 1 {
		return &types.ConfigError{Field: "probe_ratio", Reason: "must be >= 1"}
	}
	if cfg.NetworkDelay < 0 {
		return &types.ConfigError{Field: "ndelay", Reason: "must be >= 0"}
	}
	if _, err := types.ParseMode(string(cfg.Mode)); err != nil {
		return err
	}
	return nil
}

// perturbSeed deterministically derives a per-scheduler seed from the
// global seed and the scheduler's name (spec.md §6: "Implementations MUST
// seed each scheduler's RNG independently (seed + hash(name) or
// equivalent)").
func perturbSeed(seed int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return seed ^ int64(h.Sum64())
}

// Run executes one complete simulation and returns its aggregate report.
func Run(cfg Config) (types.AggregateReport, error) {
	if err := cfg.validate(); err != nil {
		return types.AggregateReport{}, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	c := clock.NewVirtual()

	workers := make([]*worker.Worker, cfg.NumWorkers)
	handles := make([]scheduler.WorkerHandle, cfg.NumWorkers)
	for i := range workers {
		id := types.WorkerID(fmt.Sprintf("w%d", i))
		w := worker.New(id, c, cfg.Durations, cfg.Seed+int64(i)+1, cfg.NetworkDelay)
		workers[i] = w
		handles[i] = w
	}

	schedulers := make([]*scheduler.Scheduler, cfg.NumSchedulers)
	for i := range schedulers {
		name := fmt.Sprintf("sched%d", i)
		s, err := scheduler.New(scheduler.Config{
			Name:      name,
			Mode:      cfg.Mode,
			Workers:   handles,
			Clock:     c,
			JobSize:   cfg.JobSizeKind,
			JobParams: cfg.JobSizeParams,
			ProbeD:    cfg.ProbeRatio,
			NetDelay:  cfg.NetworkDelay,
			Seed:      perturbSeed(cfg.Seed, name),
			Logger:    log,
		})
		if err != nil {
			return types.AggregateReport{}, err
		}
		schedulers[i] = s
	}

	log.Info("simulation starting", "workers", cfg.NumWorkers, "schedulers", cfg.NumSchedulers,
		"jobs_per_scheduler", cfg.JobsPerScheduler, "mode", cfg.Mode)

	reports := make([]types.SchedulerReport, cfg.NumSchedulers)
	for i, s := range schedulers {
		i, s := i, s
		// Each scheduler is its own concurrent clock-tracked process
		// (spec.md §5: "Across schedulers: fully concurrent").
		c.Go(func() { reports[i] = s.Run(cfg.JobsPerScheduler) })
	}
	c.Run(time.Duration(math.MaxInt64))

	simEnd := c.Now()
	log.Info("simulation done", "sim_time", simEnd)

	return metrics.Aggregate(cfg.Mode, simEnd, reports, workers), nil
}

// RunAll runs batch, late, and latepro back-to-back against identically
// configured (but freshly cloned) fleets under the same seed, matching
// original_source/simulation.py's comparison harness (SPEC_FULL.md §11,
// "sparrow simulate --mode all").
func RunAll(cfg Config) (map[types.Mode]types.AggregateReport, error) {
	out := make(map[types.Mode]types.AggregateReport, 3)
	for _, mode := range []types.Mode{types.ModeBatch, types.ModeLate, types.ModeLatePro} {
		runCfg := cfg
		runCfg.Mode = mode
		report, err := Run(runCfg)
		if err != nil {
			return nil, fmt.Errorf("mode %s: %w", mode, err)
		}
		out[mode] = report
	}
	return out, nil
}
