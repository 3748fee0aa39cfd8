package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database   string
	Table      string
	Simulation string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the rows of a result table",
		Long: `Print the rows of one table, optionally restricted to one simulation.
Text output is CSV with a header row.

Examples:
  simkernel query --db ./results.db --table Daily
  simkernel query --db ./results.db --table Daily --sim base --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryTable(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite result file (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table to print (required)")
	cmd.Flags().StringVar(&opts.Simulation, "sim", store.AllSimulations, "simulation to print rows of")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func queryTable(opts *QueryOptions, cmd *cobra.Command) error {
	st, h, err := openExisting(opts.Database, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer st.Close()

	b, err := h.GetData(cmd.Context(), opts.Simulation, opts.Table)
	if err != nil {
		return storeExitError("failed to read table", err)
	}
	if b == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("no data for table %s, simulation %s", opts.Table, opts.Simulation))
	}

	return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Table(opts.Table, b)
}
