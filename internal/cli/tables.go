package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	Database string
}

// TablesListing lists the contents of a result file.
type TablesListing struct {
	Tables      []string `json:"tables"`
	Simulations []string `json:"simulations"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables and simulations of a result file",
		Long: `List the tables of a result file in creation order, followed by the
registered simulations in id order. The simulation registry itself is not
listed as a table.

Example:
  simkernel tables --db ./results.db
  simkernel tables --db ./results.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTables(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite result file (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func listTables(opts *TablesOptions, cmd *cobra.Command) error {
	st, h, err := openExisting(opts.Database, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	tables, err := h.TableNames(ctx)
	if err != nil {
		return storeExitError("failed to list tables", err)
	}
	sims, err := h.SimulationNames(ctx)
	if err != nil {
		return storeExitError("failed to list simulations", err)
	}

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		listing := TablesListing{Tables: tables, Simulations: sims}
		if listing.Tables == nil {
			listing.Tables = []string{}
		}
		if listing.Simulations == nil {
			listing.Simulations = []string{}
		}
		return out.Success(listing)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Tables:")
	for _, t := range tables {
		fmt.Fprintf(w, "  %s\n", t)
	}
	fmt.Fprintln(w, "Simulations:")
	for _, s := range sims {
		fmt.Fprintf(w, "  %s\n", s)
	}
	return nil
}
