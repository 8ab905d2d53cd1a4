package cli

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/uow/internal/harness"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Runs int
}

// ReplayRun is the outcome of one replay of a scenario.
type ReplayRun struct {
	Run     int    `json:"run"`
	Pass    bool   `json:"pass"`
	Flushes int    `json:"flushes"`
	Digest  string `json:"digest"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Scenario      string      `json:"scenario"`
	Runs          []ReplayRun `json:"runs"`
	Deterministic bool        `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario>",
		Short: "Run a scenario repeatedly and verify identical plans",
		Long: `Run one scenario several times, each against a fresh in-memory
database, and verify that every run produces byte-identical flush plans.

Exit codes:
  0 - All runs are identical
  1 - Runs differ
  2 - Command error (scenario not found, etc.)

Examples:
  uow replay ./scenarios/department_cycle.yaml
  uow replay ./scenarios/department_cycle.yaml --runs 5 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Runs, "runs", 2, "number of runs to compare")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Runs < 2 {
		return NewExitError(ExitCommandError, "--runs must be at least 2")
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	result := ReplayResult{Scenario: scenario.Name, Deterministic: true}
	var first []byte
	for i := range opts.Runs {
		run, err := harness.Run(cmd.Context(), scenario,
			harness.WithLogger(newLogger(opts.RootOptions, formatter.GetErrWriter())))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("run %d failed", i+1), err)
		}
		snapshot, err := harness.MarshalSnapshot(scenario.Name, run)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to marshal flushes", err)
		}

		result.Runs = append(result.Runs, ReplayRun{
			Run:     i + 1,
			Pass:    run.Pass,
			Flushes: len(run.Flushes),
			Digest:  fmt.Sprintf("%016x", xxhash.Sum64(snapshot)),
		})
		if i == 0 {
			first = snapshot
		} else if !bytes.Equal(first, snapshot) {
			result.Deterministic = false
			formatter.VerboseLog("Run %d differs from run 1", i+1)
		}
	}

	var exitErr error
	if !result.Deterministic {
		exitErr = NewExitError(ExitFailure, fmt.Sprintf("scenario %s is not deterministic", scenario.Name))
	}

	if formatter.JSON() {
		if exitErr == nil {
			return formatter.Success(result)
		}
		if err := formatter.Failure("E_NONDETERMINISTIC", exitErr.Error(), result); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	for _, r := range result.Runs {
		fmt.Fprintf(w, "run %d: %d flush(es), digest %s\n", r.Run, r.Flushes, r.Digest)
	}
	if exitErr != nil {
		fmt.Fprintf(w, "✗ %s: runs differ\n", scenario.Name)
		return exitErr
	}
	fmt.Fprintf(w, "✓ %s: %d identical runs\n", scenario.Name, len(result.Runs))
	return nil
}
