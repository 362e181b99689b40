package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

func baseConfig() Config {
	return Config{
		NumWorkers:       5,
		NumSchedulers:    2,
		JobsPerScheduler: 10,
		ProbeRatio:       2,
		NetworkDelay:     0,
		Mode:             types.ModeLatePro,
		JobSizeKind:      types.JobSizeFixed,
		JobSizeParams:    types.JobSizeParams{Fixed: 1},
		Seed:             1,
		Durations:        worker.DurationPair{Short: time.Millisecond, Long: 2 * time.Millisecond, HeavyFrac: 0},
	}
}

func TestRunProducesAggregateReport(t *testing.T) {
	report, err := Run(baseConfig())
	require.NoError(t, err)

	assert.Equal(t, types.ModeLatePro, report.Mode)
	assert.Len(t, report.Schedulers, 2)
	assert.Greater(t, report.AvgRPCPerJob, 0.0)
	assert.GreaterOrEqual(t, report.WorkerUtilPct, 0.0)
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.NumWorkers = 0
	_, err := Run(cfg)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.Mode = "nonsense"
	_, err = Run(cfg)
	assert.Error(t, err)
}

func TestPerturbSeedVariesByName(t *testing.T) {
	a := perturbSeed(5, "sched0")
	b := perturbSeed(5, "sched1")
	assert.NotEqual(t, a, b)
}

func TestRunAllCoversAllModes(t *testing.T) {
	reports, err := RunAll(baseConfig())
	require.NoError(t, err)
	require.Len(t, reports, 3)

	for _, mode := range []types.Mode{types.ModeBatch, types.ModeLate, types.ModeLatePro} {
		r, ok := reports[mode]
		require.True(t, ok)
		assert.Equal(t, mode, r.Mode)
	}
}
