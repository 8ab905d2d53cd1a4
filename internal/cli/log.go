package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/uow/internal/compiler"
	"github.com/roach88/uow/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Plans    bool
}

// LogEntry is one flush log record.
type LogEntry struct {
	Seq           int64  `json:"seq"`
	Inserts       int    `json:"inserts"`
	Updates       int    `json:"updates"`
	Removes       int    `json:"removes"`
	Compensations int    `json:"compensations"`
	PlanHash      string `json:"plan_hash"`
	Plan          string `json:"plan,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <model-dir>",
		Short: "Show the flush log of a database",
		Long: `Show every flush recorded in a database, oldest first.

The model directory must describe the model the database was created
with.

Examples:
  uow log --db ./shop.db ./models/shop
  uow log --db ./shop.db ./models/shop --plans --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Plans, "plans", false, "include the canonical JSON plan of each flush")

	return cmd
}

func runLog(opts *LogOptions, modelDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	m, err := compiler.LoadModel(modelDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load model", err)
	}
	st, err := store.Open(opts.Database, m)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.Flushes(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flush log", err)
	}

	entries := make([]LogEntry, len(records))
	for i, r := range records {
		entries[i] = LogEntry{
			Seq:           r.Seq,
			Inserts:       r.Inserts,
			Updates:       r.Updates,
			Removes:       r.Removes,
			Compensations: r.Compensations,
			PlanHash:      r.PlanHash,
		}
		if opts.Plans {
			entries[i].Plan = r.Plan
		}
	}

	if formatter.JSON() {
		return formatter.Success(entries)
	}

	w := formatter.Writer
	if len(entries) == 0 {
		fmt.Fprintln(w, "No flushes recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%4d  %s  +%d ~%d -%d", e.Seq, e.PlanHash, e.Inserts, e.Updates, e.Removes)
		if e.Compensations > 0 {
			fmt.Fprintf(w, " (%d compensating)", e.Compensations)
		}
		fmt.Fprintln(w)
		if e.Plan != "" {
			fmt.Fprintf(w, "      %s\n", e.Plan)
		}
	}
	return nil
}
