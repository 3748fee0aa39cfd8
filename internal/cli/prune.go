package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Database string
	Keep     []string
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove simulations not in a keep list",
		Long: `Remove every simulation not named by --keep from the registry, together
with every row that references it. Names match case-insensitively. With no
--keep every simulation is removed.

Example:
  simkernel prune --db ./results.db --keep base,wet`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pruneSimulations(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite result file (required)")
	cmd.Flags().StringSliceVar(&opts.Keep, "keep", nil, "simulations to keep (comma separated)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func pruneSimulations(opts *PruneOptions, cmd *cobra.Command) error {
	st, h, err := openExisting(opts.Database, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := h.RemoveUnwantedSimulations(cmd.Context(), opts.Keep)
	if err != nil {
		return storeExitError("prune failed", err)
	}
	if removed == nil {
		removed = []string{}
	}

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		return out.Success(map[string]any{"removed": removed})
	}
	w := cmd.OutOrStdout()
	for _, name := range removed {
		fmt.Fprintf(w, "removed %s\n", name)
	}
	fmt.Fprintf(w, "%d simulation(s) removed\n", len(removed))
	return nil
}
