package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/targeted/internal/harness"
	"github.com/roach88/targeted/internal/world"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Workers  int
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a relay scenario and print its trace",
		Long: `Run one scenario through the push, print and shout stages and print the
shouted lines.

The pool size is taken from --workers, then the scenario's workers field,
then TARGETED_WORKERS, then GOMAXPROCS. With --db the roster is loaded from
the entities table of a SQLite database instead of the scenario.

Exit codes:
  0 - Scenario ran and met its expectations
  1 - Expectations not met
  2 - Command error (missing file, invalid scenario, bad database)

Example:
  targeted run ./scenarios/print_shout.yaml
  targeted run --workers 8 --db ./seed.db ./scenarios/from_db.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "worker pool size (overrides scenario and TARGETED_WORKERS)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to load the roster from")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenario not found: %s", path), nil)
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidScenario, "invalid scenario", err)
	}

	workers := scenario.Workers
	if workers == 0 {
		workers = opts.Config.Workers
	}
	if cmd.Flags().Changed("workers") {
		if opts.Workers < 0 {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("--workers must be >= 0, got %d", opts.Workers), nil)
		}
		workers = opts.Workers
	}

	runOpts := []harness.Option{
		harness.WithWorkers(workers),
		harness.WithAffinityChecks(opts.Config.AffinityChecks),
		harness.WithLogger(slog.Default()),
	}

	if opts.Database != "" {
		roster, err := world.LoadRoster(cmd.Context(), opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeSeedFailed, "failed to load roster", err)
		}
		formatter.VerboseLog("Loaded %d entities from %s", len(roster.Members), opts.Database)
		runOpts = append(runOpts, harness.WithRoster(roster))
	}

	slog.Info("running scenario", "scenario", scenario.Name, "events", len(scenario.Events))
	result, err := harness.Run(cmd.Context(), scenario, runOpts...)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRunFailed, "scenario run failed", err)
	}

	if !result.Pass {
		var details any = result
		if opts.Format != "json" {
			printRunText(formatter, scenario, result)
			details = strings.Join(result.Errors, "; ")
		}
		if err := formatter.Error(ErrCodeExpectFailed, "expectations not met", details); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s: expectations not met [%s]", scenario.Name, ErrCodeExpectFailed))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	printRunText(formatter, scenario, result)
	return nil
}

func printRunText(f *OutputFormatter, scenario *harness.Scenario, result *harness.Result) {
	w := f.Writer
	fmt.Fprintf(w, "Scenario %s (run %s, %d workers)\n", scenario.Name, result.RunToken, result.Workers)
	for _, st := range result.Stages {
		f.VerboseLog("  stage %d: %s", st.Seq, st.Name)
	}
	for _, line := range result.Lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintf(w, "%d lines, %d skipped (print %d, shout %d)\n",
		len(result.Lines), result.Skipped.Total(), result.Skipped.Print, result.Skipped.Shout)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  ✗ %s\n", e)
	}
}
