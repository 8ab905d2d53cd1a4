package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/uow/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Flushes  []harness.FlushTrace `json:"flushes"`
	Errors   []string             `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario and print its flush plans",
		Long: `Run one scenario file and print the actions of every flush.

Without --db the scenario runs against a fresh in-memory database, which
makes it a dry run. With --db the flushes are written to that SQLite file,
which is created if it does not exist.

Examples:
  uow run ./scenarios/rush_order.yaml
  uow run --db ./shop.db ./scenarios/rush_order.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: in memory)")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := []harness.Option{harness.WithLogger(newLogger(opts.RootOptions, formatter.GetErrWriter()))}
	if opts.Database != "" {
		runOpts = append(runOpts, harness.WithDatabase(opts.Database))
		formatter.VerboseLog("Writing flushes to %s", opts.Database)
	}

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Flushes:  result.Flushes,
		Errors:   result.Errors,
	}
	failed := NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))

	if formatter.JSON() {
		if result.Pass {
			return formatter.Success(out)
		}
		if err := formatter.Failure("E_SCENARIO_FAILED", result.Errors[0], out); err != nil {
			return err
		}
		return failed
	}

	printFlushes(formatter, result.Flushes)
	w := formatter.Writer
	if !result.Pass {
		fmt.Fprintf(w, "✗ %s\n", scenario.Name)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return failed
	}
	fmt.Fprintf(w, "✓ %s\n", scenario.Name)
	return nil
}

func printFlushes(formatter *OutputFormatter, flushes []harness.FlushTrace) {
	w := formatter.Writer
	for _, f := range flushes {
		if f.Error != "" {
			fmt.Fprintf(w, "flush %d (step %d): %s\n", f.Seq, f.Step, f.Error)
			continue
		}
		fmt.Fprintf(w, "flush %d (step %d): %d action(s)", f.Seq, f.Step, len(f.Actions))
		if f.Remapped > 0 {
			fmt.Fprintf(w, ", %d remapped", f.Remapped)
		}
		if f.Pinned > 0 {
			fmt.Fprintf(w, ", %d pinned", f.Pinned)
		}
		fmt.Fprintln(w)
		for _, a := range f.Actions {
			fmt.Fprintf(w, "  %s\n", a)
		}
	}
}
