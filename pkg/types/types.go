// ============================================================================
// Sparrow Core Type Definitions
// ============================================================================
//
// Package: pkg/types
// Purpose: Core domain models shared by the clock, worker, scheduler, and
// metrics packages.
//
// Design Principles:
//   1. Domain-Driven Design - the placement policy's vocabulary (job, task,
//      reservation, queue length) becomes Go types, not loose strings.
//   2. Durations, not timestamps - the discrete-event simulation variant has
//      no wall clock of its own; both realizations measure elapsed virtual
//      time from a run's start, so downstream metrics code is shared.
//
// ============================================================================

package types

import "time"

// JobID identifies one job (a set of tasks) submitted by a scheduler.
type JobID string

// TaskID identifies one task within a job, e.g. "T0", "T1".
type TaskID string

// WorkerID identifies a worker node. Stable for the lifetime of a run.
type WorkerID string

// RID is the opaque reservation identifier a worker hands back from REQUEST.
type RID string

// Mode selects a scheduler's placement policy.
type Mode string

const (
	ModeBatch   Mode = "batch"
	ModeLate    Mode = "late"
	ModeLatePro Mode = "latepro"
)

// ParseMode validates a configuration-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBatch, ModeLate, ModeLatePro:
		return Mode(s), nil
	default:
		return "", &ConfigError{Field: "mode", Reason: "must be one of batch, late, latepro, got " + s}
	}
}

// JobSizeKind selects the tasks-per-job distribution (spec.md §4.3).
type JobSizeKind string

const (
	JobSizeFixed    JobSizeKind = "fixed"
	JobSizeUniform  JobSizeKind = "uniform"
	JobSizePowerLaw JobSizeKind = "powerlaw"
	JobSizeMixed    JobSizeKind = "mixed"
)

// JobSizeParams carries the parameters for whichever JobSizeKind is active.
// Unused fields for a given kind are ignored, matching the Python
// prototype's single params dict (original_source/Python_codes/simulation.py,
// make_sampler).
type JobSizeParams struct {
	Fixed   int       `yaml:"fixed" json:"fixed"`
	Lo      int       `yaml:"lo" json:"lo"`
	Hi      int       `yaml:"hi" json:"hi"`
	Max     int       `yaml:"max" json:"max"`
	Choices []int     `yaml:"choices" json:"choices"`
	Weights []float64 `yaml:"weights" json:"weights"`
}

// ConfigError signals a caller-visible configuration mistake (spec.md §7:
// "only configuration errors propagate to the caller and halt the run").
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration for " + e.Field + ": " + e.Reason
}

// TaskRecord is the immutable record a worker appends on task completion
// (spec.md §3 "Task record").
type TaskRecord struct {
	JobID    JobID
	TaskID   TaskID
	Duration time.Duration // service time
	Start    time.Duration // when execution began
	End      time.Duration // when execution finished
	Wait     time.Duration // Start - assigned_at
	Response time.Duration // End - assigned_at
}

// RPCCounters tallies every RPC kind a scheduler issues (spec.md §4.2
// "Counter discipline").
type RPCCounters struct {
	Total     int64
	Probe     int64
	Assign    int64
	Request   int64
	AssignRid int64
	Cancel    int64
}

// ReservationCounters tallies reservation lifecycle events for a scheduler.
type ReservationCounters struct {
	Created int64
	Used    int64
	Wasted  int64
}

// SchedulerReport is the per-scheduler summary spec.md §4.4 defines.
type SchedulerReport struct {
	Name           string
	Mode           Mode
	CompletionAvg  time.Duration
	P95            time.Duration
	P99            time.Duration
	RPCPerJob      float64
	RPC            RPCCounters
	Reservations   ReservationCounters
	CompletedJobs  int
	TasksAvgPerJob float64
}

// AggregateReport is the full output of one simulation/live run (spec.md §6
// "Simulation boundary").
type AggregateReport struct {
	Mode           Mode
	AvgCompletion  time.Duration
	AvgRPCPerJob   float64
	TaskWaitAvg    time.Duration
	TaskRespAvg    time.Duration
	TaskServiceAvg time.Duration
	WorkerUtilPct  float64
	Imbalance      float64
	SimTime        time.Duration
	Schedulers     []SchedulerReport
}
