package rpc

// ============================================================================
// RPC Test File
// Purpose: End-to-end wire protocol: a live WorkerServer fronting a real
// worker.Worker, driven by a WorkerClient, with a DoneListener catching the
// DONE callback — exercising spec.md §6 over real loopback TCP.
// ============================================================================

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/sparrow/internal/clock"
	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

type recordingNotifier struct {
	done chan struct{}
	got  chan types.TaskID
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 8), got: make(chan types.TaskID, 8)}
}

func (r *recordingNotifier) NotifyDone(jobid types.JobID, tid types.TaskID) error {
	r.got <- tid
	r.done <- struct{}{}
	return nil
}

func TestClientServerProbeAssignDone(t *testing.T) {
	workerAddr := freeAddr(t)
	// The wire protocol carries only the scheduler's IP, not a port
	// (spec.md §6: "default 9200"), so the DONE listener must bind that
	// fixed port for the worker's callback to reach it.
	doneAddr := net.JoinHostPort("127.0.0.1", fmt.Sprint(DoneCallbackPort))

	rc := clock.NewReal()
	w := worker.New("w0", rc, worker.DefaultLiveDurations(), 1, 0)
	srv := NewWorkerServer(w, workerAddr, nil)
	go srv.ListenAndServe()
	defer srv.Close()

	notifier := newRecordingNotifier()
	dl := NewDoneListener(doneAddr, notifier, nil)
	go dl.ListenAndServe()
	defer dl.Close()

	time.Sleep(20 * time.Millisecond) // let both listeners bind

	client := NewWorkerClient("w0", workerAddr, "127.0.0.1", worker.DurationPair{Short: 10 * time.Millisecond, HeavyFrac: 0}, 1, nil)

	assert.Equal(t, 0, client.Probe())

	client.Assign("job1", "T0", nil, 5*time.Millisecond)

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for DONE callback")
	}
	assert.Equal(t, types.TaskID("T0"), <-notifier.got)
}

func TestClientRequestAssignRidCancel(t *testing.T) {
	workerAddr := freeAddr(t)
	rc := clock.NewReal()
	w := worker.New("w0", rc, worker.DefaultLiveDurations(), 2, 0)
	srv := NewWorkerServer(w, workerAddr, nil)
	go srv.ListenAndServe()
	defer srv.Close()

	time.Sleep(20 * time.Millisecond)

	client := NewWorkerClient("w0", workerAddr, "127.0.0.1", worker.DurationPair{Short: 5 * time.Millisecond, HeavyFrac: 0}, 3, nil)

	rid := client.Request("job1", "T0", nil, 5*time.Millisecond)
	require.NotEmpty(t, rid)
	assert.Equal(t, 1, client.Probe())

	err := client.AssignRid(rid)
	require.NoError(t, err)

	err = client.AssignRid(rid)
	assert.Error(t, err, "converting the same rid twice must fail")

	rid2 := client.Request("job2", "T0", nil, 5*time.Millisecond)
	require.NotEmpty(t, rid2)
	client.Cancel(rid2)

	err = client.AssignRid(rid2)
	assert.Error(t, err, "a cancelled reservation cannot be converted")
}

func TestClientProbeUnreachableWorkerIsInfinite(t *testing.T) {
	client := NewWorkerClient("ghost", "127.0.0.1:1", "127.0.0.1", worker.DefaultLiveDurations(), 1, nil)
	q := client.Probe()
	assert.Equal(t, 1<<31-1, q)
}
