package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/desim/config"
	"github.com/sarchlab/desim/examples/bankrenege"
	"github.com/sarchlab/desim/monitoring"
	"github.com/sarchlab/desim/sim"
	"github.com/sarchlab/desim/simulation"
)

type runOptions struct {
	configFile  string
	envFile     string
	maxTime     float64
	record      string
	monitor     bool
	monitorPort int
	open        bool
	logEvents   bool
	seed        uint64
}

var runOpts runOptions

// runSummary adds the event counts of a run to the outcome of the model.
type runSummary struct {
	bankrenege.Summary

	Events       int
	EventsByKind map[string]int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bank renege model",
	Long: `Run the bank renege model. Customers arrive at a bank, wait for a ` +
		`counter, and leave when their patience runs out. The configuration ` +
		`file is optional; DESIM_* environment variables and flags override it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd, runOpts)
		if err != nil {
			return err
		}

		summary, err := runBank(cfg, runOpts, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		printSummary(cmd.OutOrStdout(), summary)

		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.configFile, "config", "c", "", "Path to configuration file")
	f.StringVar(&runOpts.envFile, "env-file", "", "Path to a .env file (default .env if present)")
	f.Float64Var(&runOpts.maxTime, "max-time", 0, "Stop after the last event at or before this time (0 for no limit)")
	f.StringVar(&runOpts.record, "record", "", "Record the event log into <path>.sqlite3")
	f.BoolVar(&runOpts.monitor, "monitor", false, "Start the monitoring server")
	f.IntVar(&runOpts.monitorPort, "monitor-port", 0, "Port of the monitoring server (implies --monitor)")
	f.BoolVar(&runOpts.open, "open", false, "Open the monitor in a browser (implies --monitor)")
	f.BoolVar(&runOpts.logEvents, "log-events", false, "Print every event to stderr")
	f.Uint64Var(&runOpts.seed, "seed", 0, "Random seed")

	rootCmd.AddCommand(runCmd)
}

// loadConfig merges the defaults, the configuration file, the environment,
// and the flags that were set, in increasing priority.
func loadConfig(cmd *cobra.Command, opts runOptions) (*config.Config, error) {
	var envFiles []string
	if opts.envFile != "" {
		envFiles = append(envFiles, opts.envFile)
	}

	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := config.Default()

	if opts.configFile != "" {
		loaded, err := config.Load(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}

		cfg = *loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = opts.seed
	}

	if flags.Changed("max-time") {
		cfg.MaxTime = opts.maxTime
	}

	if flags.Changed("record") {
		cfg.Record = opts.record
	}

	if opts.monitor || opts.open || flags.Changed("monitor-port") {
		cfg.Monitor.Enabled = true
	}

	if flags.Changed("monitor-port") {
		cfg.Monitor.Port = opts.monitorPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func buildSimulation(cfg *config.Config, opts runOptions, errOut io.Writer) *simulation.Simulation {
	builder := simulation.MakeBuilder()

	if cfg.Monitor.Enabled {
		builder = builder.WithMonitorPort(cfg.Monitor.Port)
	} else {
		builder = builder.WithoutMonitoring()
	}

	if cfg.Record != "" {
		builder = builder.WithOutputFileName(cfg.Record).WithDeactivatedRecorded()
	} else {
		builder = builder.WithoutRecording()
	}

	if opts.logEvents {
		builder = builder.WithEventLogger(errOut,
			bankrenege.KeyKind, bankrenege.KeyCustomer)
	}

	return builder.Build()
}

func runBank(
	cfg *config.Config,
	opts runOptions,
	errOut io.Writer,
) (runSummary, error) {
	s := buildSimulation(cfg, opts, errOut)
	defer func() { _ = s.Terminate() }()

	scheduler := s.Scheduler()
	bank := bankrenege.NewBank(scheduler, cfg.Bank, cfg.Seed)
	s.RegisterObject("bank", bank)

	counter := sim.NewEventCounter(bankrenege.KeyKind)
	scheduler.AcceptHook(counter)

	if m := s.GetMonitor(); m != nil {
		trackProgress(m, scheduler, bank, cfg.Bank.Customers)

		if opts.open {
			if err := m.OpenInBrowser(); err != nil {
				fmt.Fprintf(errOut, "Cannot open browser: %v\n", err)
			}
		}
	}

	if err := bank.Start(); err != nil {
		return runSummary{}, err
	}

	var err error
	if cfg.MaxTime > 0 {
		_, err = scheduler.RunUntilMaxTime(sim.VTime(cfg.MaxTime), sim.WithoutLogging())
	} else {
		_, err = scheduler.Run(nil, sim.WithoutLogging())
	}

	if err != nil {
		return runSummary{}, fmt.Errorf("simulation failed: %w", err)
	}

	summary := runSummary{
		Summary:      bank.Summary(),
		Events:       int(counter.Executed()),
		EventsByKind: make(map[string]int),
	}

	for _, kind := range counter.TagNames() {
		summary.EventsByKind[kind] = int(counter.TagCount(kind))
	}

	s.RecordProperty("Served", strconv.Itoa(summary.Served))
	s.RecordProperty("Reneged", strconv.Itoa(summary.Reneged))
	s.RecordProperty("Events", strconv.Itoa(summary.Events))

	if err := s.Terminate(); err != nil {
		return summary, err
	}

	return summary, nil
}

// trackProgress shows how many customers have left the bank.
func trackProgress(
	m *monitoring.Monitor,
	scheduler *sim.EventScheduler,
	bank *bankrenege.Bank,
	customers int,
) {
	bar := m.CreateProgressBar("Customers", uint64(customers))
	left := 0

	scheduler.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
		if ctx.Pos != sim.HookPosAfterEvent {
			return
		}

		summary := bank.Summary()
		now := summary.Finished + summary.Reneged

		if now > left {
			bar.IncrementFinished(uint64(now - left))
			left = now
		}
	}))
}

func printSummary(w io.Writer, s runSummary) {
	fmt.Fprintf(w, "Customers:   %d\n", s.Customers)
	fmt.Fprintf(w, "Arrived:     %d\n", s.Arrived)
	fmt.Fprintf(w, "Served:      %d\n", s.Served)
	fmt.Fprintf(w, "Reneged:     %d\n", s.Reneged)
	fmt.Fprintf(w, "Waiting:     %d\n", s.Waiting)
	fmt.Fprintf(w, "Final clock: %.4f\n", float64(s.FinalTime))
	fmt.Fprintf(w, "Events:      %d\n", s.Events)

	for _, kind := range []string{
		bankrenege.KindArrival,
		bankrenege.KindService,
		bankrenege.KindFinish,
		bankrenege.KindRenege,
	} {
		fmt.Fprintf(w, "  %-10s %d\n", kind+":", s.EventsByKind[kind])
	}
}
