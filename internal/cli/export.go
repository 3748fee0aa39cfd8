package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Out      string
	Compress bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every table of a result file as CSV",
		Long: `Write every table of a result file, the simulation registry included,
to <out>/<base>.<table>.csv where base is the result file name without its
extension. With --compress each file is lz4-framed and named .csv.lz4.

Example:
  simkernel export --db ./results.db --out ./csv
  simkernel export --db ./results.db --out ./csv --compress`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportTables(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite result file (required)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output directory (required)")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "lz4-compress exported files")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func exportTables(opts *ExportOptions, cmd *cobra.Command) error {
	st, h, err := openExisting(opts.Database, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer st.Close()

	if err := os.MkdirAll(opts.Out, 0755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}

	files, err := h.ExportCSV(cmd.Context(), opts.Out, opts.Compress)
	if err != nil {
		return storeExitError("export failed", err)
	}

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Format == "json" {
		return out.Success(map[string]any{"files": files})
	}
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	out.VerboseLog("exported %d table(s)", len(files))
	return nil
}
