// ============================================================================
// Sparrow RPC - Scheduler DONE Listener
// ============================================================================
//
// Package: internal/rpc
// File: done.go
// Function: A scheduler's side of the worker→scheduler callback (spec.md
// §6: "Worker → scheduler callback ... to scheduler's DONE port, default
// 9200"). Ported from _examples/original_source/scheduler.py's
// listen_done.
//
// ============================================================================

package rpc

import (
	"bufio"
	"log/slog"
	"net"
	"strings"

	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

// DoneListener accepts DONE callbacks and forwards them to target's
// NotifyDone. A scheduler.Scheduler satisfies worker.DoneNotifier directly.
type DoneListener struct {
	target worker.DoneNotifier
	addr   string
	log    *slog.Logger
	ln     net.Listener
}

// NewDoneListener creates a listener bound to addr once ListenAndServe
// runs.
func NewDoneListener(addr string, target worker.DoneNotifier, log *slog.Logger) *DoneListener {
	if log == nil {
		log = slog.Default()
	}
	return &DoneListener{target: target, addr: addr, log: log}
}

// ListenAndServe accepts DONE connections until the listener is closed.
func (d *DoneListener) ListenAndServe() error {
	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		return err
	}
	d.ln = ln
	d.log.Info("done listener listening", "addr", d.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go d.handle(conn)
	}
}

// Close stops accepting new callbacks.
func (d *DoneListener) Close() error {
	if d.ln == nil {
		return nil
	}
	return d.ln.Close()
}

func (d *DoneListener) handle(conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "DONE" {
		d.log.Warn("malformed DONE message", "line", line)
		return
	}
	_ = d.target.NotifyDone(types.JobID(fields[1]), types.TaskID(fields[2]))
}
