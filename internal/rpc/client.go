// ============================================================================
// Sparrow RPC - Live Worker Client
// ============================================================================
//
// Package: internal/rpc
// File: client.go
// Function: Implements internal/scheduler.WorkerHandle over the wire
// protocol of spec.md §6, so a Scheduler drives a remote worker exactly as
// it drives an in-process *worker.Worker.
//
// Grounded on _examples/original_source/scheduler.py's rpc() helper
// (connect, sendall, recv, 1s timeout, swallow errors as a missing reply).
//
// ============================================================================

package rpc

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

// connectTimeout matches spec.md §5: "Timeouts apply only to the live RPC
// (1 s connect/read in the socket variant)".
const connectTimeout = time.Second

// WorkerClient is a scheduler's handle on one live worker.
type WorkerClient struct {
	id      types.WorkerID
	addr    string
	schedIP string // this scheduler's IP, embedded in REQUEST/ASSIGN for the DONE callback
	durs    worker.DurationPair
	rng     *rand.Rand
	log     *slog.Logger
}

// NewWorkerClient creates a client for the worker at addr. schedIP is the
// address this scheduler's DONE listener (see done.go) is reachable at.
func NewWorkerClient(id types.WorkerID, addr, schedIP string, durs worker.DurationPair, seed int64, log *slog.Logger) *WorkerClient {
	if log == nil {
		log = slog.Default()
	}
	return &WorkerClient{
		id: id, addr: addr, schedIP: schedIP, durs: durs,
		rng: rand.New(rand.NewSource(seed)), log: log,
	}
}

func (c *WorkerClient) Identity() types.WorkerID { return c.id }

// call opens one connection, writes msg, and reads a single reply line
// (spec.md §6: "One request, one reply, per connection"). Any failure
// (dial, write, read, or the 1s deadline) is reported to the caller as
// a missing reply, never as a panic — the caller decides the fallback.
func (c *WorkerClient) call(msg string) (string, bool) {
	conn, err := net.DialTimeout("tcp", c.addr, connectTimeout)
	if err != nil {
		c.log.Debug("rpc dial failed", "worker", c.id, "err", err)
		return "", false
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connectTimeout))

	if _, err := fmt.Fprintf(conn, "%s\n", msg); err != nil {
		return "", false
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(reply), true
}

// Probe returns the advertised queue length, or math.MaxInt32 on a
// malformed reply or timeout (spec.md §7: "parsed ... as ∞ (live)").
func (c *WorkerClient) Probe() int {
	reply, ok := c.call("PROBE")
	if !ok {
		return math.MaxInt32
	}
	fields := strings.Fields(reply)
	if len(fields) != 2 || fields[0] != "Q" {
		return math.MaxInt32
	}
	q, err := strconv.Atoi(fields[1])
	if err != nil {
		return math.MaxInt32
	}
	return q
}

func (c *WorkerClient) pickDuration(dur time.Duration) time.Duration {
	if dur > 0 {
		return dur
	}
	if c.rng.Float64() < c.durs.HeavyFrac {
		return c.durs.Long
	}
	return c.durs.Short
}

// Request issues REQUEST over the wire. An empty return value signals a
// timed-out or malformed reply (spec.md §7); the scheduler's shortfall
// fallback is expected to handle it.
func (c *WorkerClient) Request(jobid types.JobID, tid types.TaskID, _ worker.DoneNotifier, dur time.Duration) types.RID {
	dur = c.pickDuration(dur)
	msg := fmt.Sprintf("REQUEST %s %s %d %s", jobid, tid, dur.Milliseconds(), c.schedIP)
	reply, ok := c.call(msg)
	if !ok {
		return ""
	}
	fields := strings.Fields(reply)
	if len(fields) != 2 || fields[0] != "RID" {
		return ""
	}
	return types.RID(fields[1])
}

// Assign issues ASSIGN over the wire. Its reply carries no information the
// caller needs beyond logging (spec.md §4.2 BATCH step 5).
func (c *WorkerClient) Assign(jobid types.JobID, tid types.TaskID, _ worker.DoneNotifier, dur time.Duration) {
	dur = c.pickDuration(dur)
	msg := fmt.Sprintf("ASSIGN %s %s %d %s", jobid, tid, dur.Milliseconds(), c.schedIP)
	if _, ok := c.call(msg); !ok {
		c.log.Debug("assign rpc failed", "worker", c.id, "jobid", jobid, "tid", tid)
	}
}

// AssignRid issues ASSIGN_RID. A non-"STARTED" reply (including a timeout)
// is reported as ErrUnknownReservation, matching the in-process Worker's
// own error for the same condition.
func (c *WorkerClient) AssignRid(rid types.RID) error {
	reply, ok := c.call(fmt.Sprintf("ASSIGN_RID %s", rid))
	if !ok || reply != "STARTED" {
		return worker.ErrUnknownReservation
	}
	return nil
}

// Cancel issues CANCEL. Idempotent and fire-and-forget on the wire, same as
// the in-process Worker.
func (c *WorkerClient) Cancel(rid types.RID) {
	if _, ok := c.call(fmt.Sprintf("CANCEL %s", rid)); !ok {
		c.log.Debug("cancel rpc failed", "worker", c.id, "rid", rid)
	}
}
