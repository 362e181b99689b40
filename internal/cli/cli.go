// ============================================================================
// Sparrow CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command tree, structured the way
// _examples/ChuLiYu-raft-recovery/internal/cli/cli.go lays out its root
// command, persistent --config flag, and per-command flags.
//
// Command Structure:
//   sparrow                          # Root command
//   ├── simulate                     # Run the in-process discrete-event harness
//   │   ├── --config, -c             # Config file (default configs/default.yaml)
//   │   └── --mode                   # Override: batch | late | latepro | all
//   ├── worker                       # Start a live TCP worker node
//   │   └── --listen                 # Listen address
//   ├── scheduler                    # Start a live scheduler against configured workers
//   │   └── --jobs                   # Jobs to issue before exiting
//   ├── status                       # Print the last captured aggregate report
//   ├── --version
//   └── --help
//
// ============================================================================

package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/sparrow/internal/clock"
	"github.com/ChuLiYu/sparrow/internal/config"
	"github.com/ChuLiYu/sparrow/internal/metrics"
	"github.com/ChuLiYu/sparrow/internal/rpc"
	"github.com/ChuLiYu/sparrow/internal/scheduler"
	"github.com/ChuLiYu/sparrow/internal/sim"
	"github.com/ChuLiYu/sparrow/internal/worker"
	"github.com/ChuLiYu/sparrow/pkg/types"
)

var (
	configFile  string
	lastReport  *types.AggregateReport
	lastReports map[types.Mode]types.AggregateReport
)

// BuildCLI constructs the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sparrow",
		Short: "Sparrow: a decentralized cluster task scheduler simulator",
		Long: `Sparrow models Berkeley's Sparrow scheduler in both a deterministic
discrete-event simulation and a live TCP deployment, sharing one
placement-policy core between the two.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildSimulateCommand())
	rootCmd.AddCommand(buildWorkerCommand())
	rootCmd.AddCommand(buildSchedulerCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildSimulateCommand() *cobra.Command {
	var modeOverride string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the discrete-event simulation harness",
		Long:  "Build a virtual-clock fleet from the config file and run one mode (or all three) to completion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(modeOverride)
		},
	}
	cmd.Flags().StringVar(&modeOverride, "mode", "", "batch|late|latepro|all (overrides config file)")
	return cmd
}

func runSimulate(modeOverride string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mode := cfg.Simulation.Mode
	if modeOverride != "" {
		mode = modeOverride
	}

	driverCfg := sim.Config{
		NumWorkers:       cfg.Simulation.Workers,
		NumSchedulers:    cfg.Simulation.Schedulers,
		JobsPerScheduler: cfg.Simulation.JobsPerScheduler,
		ProbeRatio:       cfg.Simulation.ProbeRatio,
		NetworkDelay:     cfg.NetworkDelay(),
		JobSizeKind:      types.JobSizeKind(cfg.JobSize.Kind),
		JobSizeParams:    cfg.JobSizeParams(),
		Seed:             cfg.Simulation.Seed,
		Durations: worker.DurationPair{
			Short:     time.Duration(cfg.Durations.ShortMs) * time.Millisecond,
			Long:      time.Duration(cfg.Durations.LongMs) * time.Millisecond,
			HeavyFrac: cfg.Durations.HeavyFrac,
		},
		Logger: slog.Default(),
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	if mode == "all" {
		reports, err := sim.RunAll(driverCfg)
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}
		lastReports = reports
		printComparison(reports)
		return nil
	}

	driverCfg.Mode = types.Mode(mode)
	report, err := sim.Run(driverCfg)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	lastReport = &report
	printReport(report)
	return nil
}

func printReport(r types.AggregateReport) {
	fmt.Printf("\nmode=%s  jobs completed across %d scheduler(s)\n", r.Mode, len(r.Schedulers))
	fmt.Printf("  avg completion:   %s\n", r.AvgCompletion)
	fmt.Printf("  avg rpc/job:      %.2f\n", r.AvgRPCPerJob)
	fmt.Printf("  task wait avg:    %s\n", r.TaskWaitAvg)
	fmt.Printf("  task resp avg:    %s\n", r.TaskRespAvg)
	fmt.Printf("  task service avg: %s\n", r.TaskServiceAvg)
	fmt.Printf("  worker util:      %.1f%%\n", r.WorkerUtilPct)
	fmt.Printf("  imbalance:        %.2f\n", r.Imbalance)
	fmt.Printf("  sim time:         %s\n", r.SimTime)
}

func printComparison(reports map[types.Mode]types.AggregateReport) {
	fmt.Println("\nmode      avg_completion  avg_rpc/job  worker_util%  imbalance")
	for _, mode := range []types.Mode{types.ModeBatch, types.ModeLate, types.ModeLatePro} {
		r, ok := reports[mode]
		if !ok {
			continue
		}
		fmt.Printf("%-9s %-15s %-12.2f %-13.1f %.2f\n", r.Mode, r.AvgCompletion, r.AvgRPCPerJob, r.WorkerUtilPct, r.Imbalance)
	}
}

func buildWorkerCommand() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start a live TCP worker node",
		Long:  "Serve the PROBE/REQUEST/ASSIGN/ASSIGN_RID/CANCEL wire protocol for one worker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(listenAddr)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides config file's live.listen_addr")
	return cmd
}

func runWorker(listenOverride string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	addr := cfg.Live.ListenAddr
	if listenOverride != "" {
		addr = listenOverride
	}

	rc := clock.NewReal()
	durs := worker.DurationPair{
		Short:     time.Duration(cfg.Durations.ShortMs) * time.Millisecond,
		Long:      time.Duration(cfg.Durations.LongMs) * time.Millisecond,
		HeavyFrac: cfg.Durations.HeavyFrac,
	}
	id := types.WorkerID(addr)
	w := worker.New(id, rc, durs, cfg.Simulation.Seed, 0)

	srv := rpc.NewWorkerServer(w, addr, slog.Default())
	slog.Info("worker starting", "addr", addr)
	return srv.ListenAndServe()
}

func buildSchedulerCommand() *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run a live scheduler against configured workers",
		Long:  "Issue jobs against the live workers listed in live.workers and print a report on exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(jobs)
		},
	}
	cmd.Flags().IntVar(&jobs, "jobs", 0, "jobs to issue (overrides config's jobs_per_scheduler)")
	return cmd
}

func runScheduler(jobsOverride int) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Live.Workers) == 0 {
		return fmt.Errorf("no live.workers configured")
	}

	rc := clock.NewReal()
	durs := worker.DurationPair{
		Short:     time.Duration(cfg.Durations.ShortMs) * time.Millisecond,
		Long:      time.Duration(cfg.Durations.LongMs) * time.Millisecond,
		HeavyFrac: cfg.Durations.HeavyFrac,
	}

	handles := make([]scheduler.WorkerHandle, len(cfg.Live.Workers))
	for i, addr := range cfg.Live.Workers {
		handles[i] = rpc.NewWorkerClient(types.WorkerID(addr), addr, cfg.Live.SchedIP, durs, cfg.Simulation.Seed+int64(i), slog.Default())
	}

	name := "live-sched"
	s, err := scheduler.New(scheduler.Config{
		Name:      name,
		Mode:      types.Mode(cfg.Simulation.Mode),
		Workers:   handles,
		Clock:     rc,
		JobSize:   types.JobSizeKind(cfg.JobSize.Kind),
		JobParams: cfg.JobSizeParams(),
		ProbeD:    cfg.Simulation.ProbeRatio,
		NetDelay:  cfg.NetworkDelay(),
		Seed:      cfg.Simulation.Seed,
		Logger:    slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	doneAddr := ":" + strconv.Itoa(rpc.DoneCallbackPort)
	dl := rpc.NewDoneListener(doneAddr, s, slog.Default())
	go func() {
		if err := dl.ListenAndServe(); err != nil {
			slog.Debug("done listener stopped", "err", err)
		}
	}()
	defer dl.Close()

	jobs := cfg.Simulation.JobsPerScheduler
	if jobsOverride > 0 {
		jobs = jobsOverride
	}

	report := s.Run(jobs)
	r := metrics.Aggregate(types.Mode(cfg.Simulation.Mode), 0, []types.SchedulerReport{report}, nil)
	lastReport = &r
	printReport(r)
	return nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last captured aggregate report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	fmt.Println("\n=== Sparrow Status ===")
	fmt.Printf("config file: %s\n", configFile)

	if lastReports != nil {
		printComparison(lastReports)
		return nil
	}
	if lastReport != nil {
		printReport(*lastReport)
		return nil
	}
	fmt.Println("no run captured yet (run 'sparrow simulate' first)")
	return nil
}
