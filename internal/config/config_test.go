package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	content := `
simulation:
  workers: 8
  schedulers: 2
  jobs_per_scheduler: 50
  probe_ratio: 2
  network_delay_ms: 5
  mode: batch
  seed: 7

jobsize:
  kind: uniform
  lo: 1
  hi: 4

durations:
  short_ms: 5
  long_ms: 50
  heavy_frac: 0.1
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8, cfg.Simulation.Workers)
	assert.Equal(t, 2, cfg.Simulation.Schedulers)
	assert.Equal(t, "batch", cfg.Simulation.Mode)
	assert.Equal(t, int64(7), cfg.Simulation.Seed)
	assert.Equal(t, "uniform", cfg.JobSize.Kind)
	assert.Equal(t, 4, cfg.JobSize.Hi)
}

func TestLoadFileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read")
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("simulation:\n  workers: [not closed"), 0644))

	cfg, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse")
}

func TestJobSizeParamsAndNetworkDelay(t *testing.T) {
	var cfg Config
	cfg.JobSize.Fixed = 3
	cfg.JobSize.Choices = []int{1, 5}
	cfg.JobSize.Weights = []float64{0.5, 0.5}
	cfg.Simulation.NetworkDelayMs = 2

	params := cfg.JobSizeParams()
	assert.Equal(t, 3, params.Fixed)
	assert.Equal(t, []int{1, 5}, params.Choices)

	assert.Equal(t, int64(2_000_000), cfg.NetworkDelay().Nanoseconds())
}

func TestDefaultConfigLoads(t *testing.T) {
	cfg, err := Load("../../configs/default.yaml")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cfg.Simulation.Workers, 1)
	assert.NotEmpty(t, cfg.Simulation.Mode)
}
