// ============================================================================
// Sparrow Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose the aggregator of spec.md §4.4 as Prometheus
// series, adapted from the teacher's queue-depth Collector
// (_examples/ChuLiYu-raft-recovery/internal/metrics/metrics.go) to Sparrow's
// own metric set. The Counter/Histogram/Gauge + MustRegister + StartServer
// shape is kept verbatim; only the metric names and recording methods
// changed.
//
// Metric Categories:
//
//   1. RPC/reservation counters (per scheduler, per kind) - cumulative:
//      - sparrow_rpc_total{scheduler,kind}
//      - sparrow_reservations_total{scheduler,event} (created|used|wasted)
//
//   2. Job completion (Histogram, per mode) - spec.md §4.4's completion_avg,
//      p95, p99 are derived from the same samples this histogram observes;
//      the in-process SchedulerReport uses internal/metrics.Percentile
//      directly rather than scraping Prometheus, so the histogram here is
//      for external observability only, not the source of truth.
//      - sparrow_job_completion_seconds{mode}
//
//   3. Worker gauges (spec.md §4.4 "worker util", "imbalance"):
//      - sparrow_worker_util_pct
//      - sparrow_worker_imbalance
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes a simulation/live run's aggregate metrics via
// Prometheus.
type Collector struct {
	rpcTotal         *prometheus.CounterVec
	reservationTotal *prometheus.CounterVec
	jobCompletion    *prometheus.HistogramVec

	workerUtil      prometheus.Gauge
	workerImbalance prometheus.Gauge
}

// NewCollector creates and registers a Collector.
func NewCollector() *Collector {
	c := &Collector{
		rpcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparrow_rpc_total",
			Help: "Total RPCs issued by a scheduler, by kind",
		}, []string{"scheduler", "kind"}),
		reservationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparrow_reservations_total",
			Help: "Reservation lifecycle events, by scheduler and event (created|used|wasted)",
		}, []string{"scheduler", "event"}),
		jobCompletion: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sparrow_job_completion_seconds",
			Help:    "Per-job wall-clock completion time, by placement mode",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		workerUtil: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sparrow_worker_util_pct",
			Help: "Fleet-wide worker utilization at run end (spec §4.4)",
		}),
		workerImbalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sparrow_worker_imbalance",
			Help: "(max_q + 1) / (min_q + 1) across the worker fleet at run end",
		}),
	}

	prometheus.MustRegister(c.rpcTotal)
	prometheus.MustRegister(c.reservationTotal)
	prometheus.MustRegister(c.jobCompletion)
	prometheus.MustRegister(c.workerUtil)
	prometheus.MustRegister(c.workerImbalance)

	return c
}

// RecordRPC records one RPC of the given kind ("probe", "request", "assign",
// "assign_rid", "cancel") issued by scheduler.
func (c *Collector) RecordRPC(scheduler, kind string, n int64) {
	c.rpcTotal.WithLabelValues(scheduler, kind).Add(float64(n))
}

// RecordReservation records a reservation lifecycle event ("created",
// "used", or "wasted") for scheduler.
func (c *Collector) RecordReservation(scheduler, event string, n int64) {
	c.reservationTotal.WithLabelValues(scheduler, event).Add(float64(n))
}

// RecordJobCompletion observes one job's wall-clock completion time under
// mode.
func (c *Collector) RecordJobCompletion(mode string, seconds float64) {
	c.jobCompletion.WithLabelValues(mode).Observe(seconds)
}

// SetWorkerStats publishes the end-of-run utilization and imbalance gauges
// (spec.md §4.4).
func (c *Collector) SetWorkerStats(utilPct, imbalance float64) {
	c.workerUtil.Set(utilPct)
	c.workerImbalance.Set(imbalance)
}

// StartServer starts the Prometheus /metrics HTTP server.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
