// ============================================================================
// Sparrow Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: YAML configuration surface for both the simulation driver and
// the live worker/scheduler binaries, matching
// _examples/ChuLiYu-raft-recovery/internal/cli/cli.go's Config struct and
// loadConfig function in shape (a root struct with nested yaml-tagged
// sections, loaded with gopkg.in/yaml.v3).
//
// ============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/sparrow/pkg/types"
)

// Config is the complete configuration surface spec.md §6 enumerates for a
// simulation run, plus the live-variant's worker/listener addresses
// (SPEC_FULL.md §9.3).
type Config struct {
	Simulation struct {
		Workers          int    `yaml:"workers"`
		Schedulers       int    `yaml:"schedulers"`
		JobsPerScheduler int    `yaml:"jobs_per_scheduler"`
		ProbeRatio       int    `yaml:"probe_ratio"`
		NetworkDelayMs   int    `yaml:"network_delay_ms"`
		Mode             string `yaml:"mode"`
		Seed             int64  `yaml:"seed"`
	} `yaml:"simulation"`

	JobSize struct {
		Kind    string    `yaml:"kind"`
		Fixed   int       `yaml:"fixed"`
		Lo      int       `yaml:"lo"`
		Hi      int       `yaml:"hi"`
		Max     int       `yaml:"max"`
		Choices []int     `yaml:"choices"`
		Weights []float64 `yaml:"weights"`
	} `yaml:"jobsize"`

	Durations struct {
		ShortMs   int     `yaml:"short_ms"`
		LongMs    int     `yaml:"long_ms"`
		HeavyFrac float64 `yaml:"heavy_frac"`
	} `yaml:"durations"`

	Live struct {
		Workers    []string `yaml:"workers"` // live worker addresses, "host:port"
		ListenAddr string   `yaml:"listen_addr"`
		SchedIP    string   `yaml:"sched_ip"`
	} `yaml:"live"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// JobSizeParams converts the YAML job-size section into pkg/types'
// JobSizeParams.
func (c *Config) JobSizeParams() types.JobSizeParams {
	return types.JobSizeParams{
		Fixed:   c.JobSize.Fixed,
		Lo:      c.JobSize.Lo,
		Hi:      c.JobSize.Hi,
		Max:     c.JobSize.Max,
		Choices: c.JobSize.Choices,
		Weights: c.JobSize.Weights,
	}
}

// NetworkDelay converts the millisecond YAML field into a time.Duration.
func (c *Config) NetworkDelay() time.Duration {
	return time.Duration(c.Simulation.NetworkDelayMs) * time.Millisecond
}
