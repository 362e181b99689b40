// ============================================================================
// Sparrow Metrics - Quantile Helper
// ============================================================================
//
// Package: internal/metrics
// File: quantile.go
// Function: completion-time quantiles for the per-scheduler report
// (spec.md §4.4: "use linear-interpolated quantiles over the 100-quantile
// grid; for fewer than 100 jobs, clamp the index to min(94|98, n-1)").
//
// A dedicated stats library (e.g. gonum/stat) is not present anywhere in the
// retrieval pack, and the computation spec.md demands is a dozen lines of
// arithmetic, not a statistics concern in the sense the ambient-stack rule
// is aimed at (logging/config/CLI/tests) — so this one helper is stdlib
// `sort` + arithmetic, justified as a case too narrow to warrant a
// dependency the corpus never reaches for.
//
// ============================================================================

package metrics

import (
	"sort"
	"time"
)

// Percentile returns the idx100-th point of the 100-quantile grid over
// sorted completion times, per spec.md §4.4. idx100 is 0-based (94 for p95,
// 98 for p99). durations need not be pre-sorted; Percentile sorts a copy.
func Percentile(durations []time.Duration, idx100 int) time.Duration {
	n := len(durations)
	if n == 0 {
		return 0
	}

	sorted := make([]time.Duration, n)
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if n < 100 {
		i := idx100
		if i > n-1 {
			i = n - 1
		}
		return sorted[i]
	}

	pos := float64(idx100) / 99.0 * float64(n-1)
	lo := int(pos)
	hi := lo + 1
	if hi > n-1 {
		hi = n - 1
	}
	frac := pos - float64(lo)
	a, b := float64(sorted[lo]), float64(sorted[hi])
	return time.Duration(a + (b-a)*frac)
}

// P95 and P99 are the two percentiles spec.md §4.4 names explicitly.
func P95(durations []time.Duration) time.Duration { return Percentile(durations, 94) }
func P99(durations []time.Duration) time.Duration { return Percentile(durations, 98) }

// Mean returns the arithmetic mean of durations, or 0 for an empty slice.
func Mean(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}
