package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/targeted/internal/harness"
	"github.com/roach88/targeted/internal/pool"
	"github.com/roach88/targeted/internal/targeted"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Workers int
	Events  int
	Keys    int
}

// BenchReport is the bench command output.
type BenchReport struct {
	harness.BenchResult
	EventsPerSecond float64 `json:"events_per_second"`
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure A to B relay throughput",
		Long: `Push events into store A, relay every one into store B from inside A's
parallel drain, then drain B and check each event arrived once at its key.

Example:
  targeted bench --workers 8 --events 1000000 --keys 4096`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "worker pool size (overrides TARGETED_WORKERS)")
	cmd.Flags().IntVar(&opts.Events, "events", 100000, "number of events to relay")
	cmd.Flags().IntVar(&opts.Keys, "keys", 1024, "number of distinct target keys")

	return cmd
}

func runBench(opts *BenchOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	workers := opts.Config.Workers
	if cmd.Flags().Changed("workers") {
		workers = opts.Workers
	}
	if workers < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("--workers must be >= 0, got %d", workers), nil)
	}

	if opts.Events < 0 || opts.Keys <= 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("--events must be >= 0 and --keys > 0, got %d and %d", opts.Events, opts.Keys), nil)
	}

	p := pool.New(workers)
	defer p.Close()

	slog.Info("relay bench starting", "workers", p.Size(), "events", opts.Events, "keys", opts.Keys)
	res, err := harness.Relay(p, opts.Events, opts.Keys,
		targeted.WithAffinityChecks(opts.Config.AffinityChecks),
		targeted.WithLogger(slog.Default()),
	)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBenchFailed, "relay bench failed", err)
	}

	report := BenchReport{BenchResult: res, EventsPerSecond: res.EventsPerSecond()}
	if opts.Format == "json" {
		return formatter.Success(report)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Relayed %d events over %d keys with %d workers\n", res.Relayed, res.Keys, res.Workers)
	fmt.Fprintf(w, "  push:    %v\n", res.Push)
	fmt.Fprintf(w, "  relay:   %v\n", res.Relay)
	fmt.Fprintf(w, "  collect: %v\n", res.Collect)
	fmt.Fprintf(w, "  %.0f events/s\n", report.EventsPerSecond)
	return nil
}
