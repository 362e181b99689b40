// ============================================================================
// Sparrow RPC - Live Worker Wire Server
// ============================================================================
//
// Package: internal/rpc
// File: server.go
// Function: Serves spec.md §6's newline-terminated ASCII TCP protocol
// (PROBE/REQUEST/ASSIGN/ASSIGN_RID/CANCEL) in front of one *worker.Worker,
// so the live deployment runs the exact same Worker code as the simulation.
//
// Grounded on _examples/Guti2010-Proyecto-SO/internal/server/server.go's
// net.Listen + bufio.Reader per-connection handler shape (HandleConn /
// ListenAndServe), and on _examples/original_source/worker.py's
// client_handler for the exact command set and reply strings.
//
// ============================================================================

package rpc

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

// DoneCallbackPort is the default port a scheduler listens on for worker
// DONE callbacks (spec.md §6: "default 9200").
const DoneCallbackPort = 9200

// WorkerServer serves the wire protocol in front of one Worker.
type WorkerServer struct {
	w    *worker.Worker
	addr string
	log  *slog.Logger
	ln   net.Listener
}

// NewWorkerServer creates a server for w, bound to addr once ListenAndServe
// runs.
func NewWorkerServer(w *worker.Worker, addr string, log *slog.Logger) *WorkerServer {
	if log == nil {
		log = slog.Default()
	}
	return &WorkerServer{w: w, addr: addr, log: log}
}

// ListenAndServe accepts connections until the listener is closed. Each
// connection carries exactly one request and one reply (spec.md §6).
func (s *WorkerServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.log.Info("worker server listening", "addr", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *WorkerServer) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *WorkerServer) handleConn(conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "PROBE":
		q := s.w.Probe()
		fmt.Fprintf(conn, "Q %d\n", q)

	case "REQUEST":
		if len(fields) != 5 {
			s.log.Warn("malformed REQUEST", "line", line)
			return
		}
		dur, schedIP := parseDurAndSched(fields[3], fields[4])
		rid := s.w.Request(types.JobID(fields[1]), types.TaskID(fields[2]), newRemoteSched(schedIP), dur)
		fmt.Fprintf(conn, "RID %s\n", rid)

	case "ASSIGN":
		if len(fields) != 5 {
			s.log.Warn("malformed ASSIGN", "line", line)
			return
		}
		dur, schedIP := parseDurAndSched(fields[3], fields[4])
		s.w.Assign(types.JobID(fields[1]), types.TaskID(fields[2]), newRemoteSched(schedIP), dur)
		fmt.Fprint(conn, "STARTED\n")

	case "ASSIGN_RID":
		if len(fields) != 2 {
			s.log.Warn("malformed ASSIGN_RID", "line", line)
			return
		}
		if err := s.w.AssignRid(types.RID(fields[1])); err != nil {
			fmt.Fprint(conn, "ERR\n")
			return
		}
		fmt.Fprint(conn, "STARTED\n")

	case "CANCEL":
		if len(fields) != 2 {
			s.log.Warn("malformed CANCEL", "line", line)
			return
		}
		s.w.Cancel(types.RID(fields[1]))
		fmt.Fprint(conn, "CANCELLED\n")

	default:
		s.log.Warn("unknown command", "cmd", fields[0])
	}
}

func parseDurAndSched(durField, schedField string) (time.Duration, string) {
	ms, err := strconv.Atoi(durField)
	if err != nil {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond, schedField
}

// remoteSched is the DoneNotifier a WorkerServer hands to Worker for a
// REQUEST/ASSIGN originating from a remote scheduler: notifying it means
// dialing its DONE port and sending one line (spec.md §3 "Worker→scheduler
// callback"), not holding any reference to a Scheduler value.
type remoteSched struct {
	addr string
}

func newRemoteSched(schedIP string) *remoteSched {
	return &remoteSched{addr: net.JoinHostPort(schedIP, strconv.Itoa(DoneCallbackPort))}
}

func (r *remoteSched) NotifyDone(jobid types.JobID, tid types.TaskID) error {
	conn, err := net.DialTimeout("tcp", r.addr, time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = fmt.Fprintf(conn, "DONE %s %s\n", jobid, tid)
	return err
}
