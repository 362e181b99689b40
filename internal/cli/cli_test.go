package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "sparrow", cmd.Use)

	commands := cmd.Commands()
	assert.Len(t, commands, 4, "should have simulate, worker, scheduler, status")

	names := make(map[string]bool)
	for _, c := range commands {
		names[c.Use] = true
	}
	assert.True(t, names["simulate"])
	assert.True(t, names["worker"])
	assert.True(t, names["scheduler"])
	assert.True(t, names["status"])

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue)
}

func TestBuildSimulateCommand(t *testing.T) {
	cmd := buildSimulateCommand()
	assert.Equal(t, "simulate", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("mode"))
}

func TestBuildWorkerCommand(t *testing.T) {
	cmd := buildWorkerCommand()
	assert.Equal(t, "worker", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("listen"))
}

func TestBuildSchedulerCommand(t *testing.T) {
	cmd := buildSchedulerCommand()
	assert.Equal(t, "scheduler", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("jobs"))
}

func TestShowStatusWithNoRun(t *testing.T) {
	lastReport = nil
	lastReports = nil
	err := showStatus()
	assert.NoError(t, err)
}

func TestRunSimulateEndToEnd(t *testing.T) {
	tmp := t.TempDir() + "/cfg.yaml"
	content := `
simulation:
  workers: 3
  schedulers: 1
  jobs_per_scheduler: 5
  probe_ratio: 2
  network_delay_ms: 0
  mode: batch
  seed: 1
jobsize:
  kind: fixed
  fixed: 1
durations:
  short_ms: 1
  long_ms: 2
  heavy_frac: 0
`
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0644))
	configFile = tmp

	err := runSimulate("")
	assert.NoError(t, err)
	assert.NotNil(t, lastReport)
}
