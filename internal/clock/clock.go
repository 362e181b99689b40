// ============================================================================
// Sparrow Clock - Virtual Time / Event Loop
// ============================================================================
//
// Package: internal/clock
// File: clock.go
// Function: Provides the suspension primitive spec.md §5 requires ("start
// and end of every RPC leg, task service, pre-notify delay") behind one
// interface, so the worker and scheduler packages are written once and run
// under either realization:
//
//   - VirtualClock: single-threaded cooperative discrete-event simulation.
//     No library in the retrieval pack provides this (the Python prototype
//     leans on simpy, which has no Go equivalent among the examples), so
//     this is hand-built: a goroutine is a simpy "process", Sleep is a
//     simpy timeout, and a driver goroutine only advances virtual time once
//     every spawned goroutine is blocked in Sleep (quiescent). That gives
//     the "same virtual instant" round semantics spec.md §5 calls for
//     without data races on worker state, while still letting woken
//     goroutines run as real, parallel Go code between checkpoints. A
//     goroutine that blocks on other tracked goroutines finishing, rather
//     than on a timer, must release its token via Block instead of holding
//     it — otherwise the driver's quiescence check never sees active==0
//     and Run never advances.
//   - RealClock: trivial wall-clock pass-through for the live TCP variant.
//
// Concurrency Model:
//   Run() drives the VirtualClock from a single goroutine. Sleep() and Go()
//   may be called concurrently from many goroutines; both touch only the
//   clock's own mutex-protected heap and counter, never worker/scheduler
//   state directly.
//
// ============================================================================

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Clock is the suspension primitive shared by the simulation and live
// variants (spec.md §5).
type Clock interface {
	// Now returns elapsed time since the clock started.
	Now() time.Duration
	// Sleep blocks the calling goroutine until d has elapsed.
	Sleep(d time.Duration)
	// Go spawns fn as a new concurrent "process" tracked by the clock.
	Go(fn func())
	// Block runs fn on the calling goroutine while releasing this
	// goroutine's own active token. Use it around a wait for other
	// tracked goroutines to finish (a channel receive, an errgroup.Wait)
	// rather than a timed Sleep, so the wait itself never holds the
	// quiescence barrier open.
	Block(fn func())
}

// ---------------------------------------------------------------------------
// VirtualClock
// ---------------------------------------------------------------------------

type wakeEvent struct {
	at   time.Duration
	seq  uint64
	wake chan struct{}
}

type eventHeap []*wakeEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(*wakeEvent)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// VirtualClock is a deterministic discrete-event simulation clock: one
// driver goroutine (Run) advances virtual time only when every spawned
// goroutine (Go) is either finished or blocked in Sleep.
type VirtualClock struct {
	mu     sync.Mutex
	cond   *sync.Cond
	now    time.Duration
	events eventHeap
	active int
	seq    uint64
}

// NewVirtual creates a VirtualClock starting at virtual time zero.
func NewVirtual() *VirtualClock {
	c := &VirtualClock{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *VirtualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Go spawns fn as a tracked process. The driver will not advance time past
// the point where fn (and everything it transitively spawns) is quiescent.
func (c *VirtualClock) Go(fn func()) {
	c.mu.Lock()
	c.active++
	c.mu.Unlock()

	go func() {
		fn()
		c.mu.Lock()
		c.active--
		c.cond.Broadcast()
		c.mu.Unlock()
	}()
}

// Sleep blocks the calling goroutine until the clock has advanced by d.
func (c *VirtualClock) Sleep(d time.Duration) {
	wake := make(chan struct{})

	c.mu.Lock()
	c.seq++
	heap.Push(&c.events, &wakeEvent{at: c.now + d, seq: c.seq, wake: wake})
	c.active--
	c.cond.Broadcast()
	c.mu.Unlock()

	<-wake
}

// Block releases the calling goroutine's active token for the duration of
// fn, then reacquires it. Unlike Sleep, it schedules no wake event: fn is
// expected to return on its own once whatever it is waiting on (other
// tracked goroutines) completes, not because virtual time advanced.
func (c *VirtualClock) Block(fn func()) {
	c.mu.Lock()
	c.active--
	c.cond.Broadcast()
	c.mu.Unlock()

	fn()

	c.mu.Lock()
	c.active++
	c.mu.Unlock()
}

// Run drives virtual time forward until no scheduled event remains at or
// before until, or until is exceeded. It must be called from exactly one
// goroutine and only after every initial process has been spawned via Go.
func (c *VirtualClock) Run(until time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		for c.active > 0 {
			c.cond.Wait()
		}
		if len(c.events) == 0 {
			return
		}
		next := c.events[0].at
		if next > until {
			return
		}
		c.now = next

		var woken []*wakeEvent
		for len(c.events) > 0 && c.events[0].at == c.now {
			e := heap.Pop(&c.events).(*wakeEvent)
			woken = append(woken, e)
		}
		c.active += len(woken)
		for _, e := range woken {
			close(e.wake)
		}
	}
}

// ---------------------------------------------------------------------------
// RealClock
// ---------------------------------------------------------------------------

// RealClock is the live-variant realization: real goroutines, real time.
type RealClock struct {
	start time.Time
	once  sync.Once
}

// NewReal creates a RealClock anchored at the current wall-clock instant.
func NewReal() *RealClock {
	return &RealClock{start: time.Now()}
}

func (c *RealClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (c *RealClock) Go(fn func()) {
	go fn()
}

func (c *RealClock) Block(fn func()) {
	fn()
}
