package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/harness"
	"github.com/roach88/simkernel/internal/runner"
	"github.com/roach88/simkernel/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Workers  int
	Export   string
	Compress bool
	NoPrune  bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunSummary is the outcome of a run group.
type RunSummary struct {
	RunID     string            `json:"run_id"`
	Database  string            `json:"database"`
	Completed []string          `json:"completed"`
	Failed    map[string]string `json:"failed,omitempty"`
	Tables    []string          `json:"tables"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run the simulations of a scenario file",
		Long: `Run every simulation of a scenario file as one run group.

Simulations run concurrently up to --workers and share the result file
given by --db (created if it doesn't exist). Results of simulations no
longer in the scenario are pruned, and rows of re-run simulations are
replaced, unless --no-prune is set. Scenario assertions are not evaluated;
use "simkernel test" for that.

Exit codes:
  0 - All simulations completed
  1 - One or more simulations failed
  2 - Command error (invalid scenario, unusable database, etc.)

Example:
  simkernel run --db ./results.db ./scenarios/daily.yaml
  simkernel run --db ./results.db --workers 4 --export ./out --compress ./scenarios/daily.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite result file (required)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "simulations run at once (0 uses the scenario's workers)")
	cmd.Flags().StringVar(&opts.Export, "export", "", "directory to export every table as CSV after the run")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "lz4-compress exported CSV files")
	cmd.Flags().BoolVar(&opts.NoPrune, "no-prune", false, "keep results of earlier runs")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	sims, err := harness.BuildSimulations(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build simulations", err)
	}

	workers := scenario.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	storeOpts := []store.Option{store.WithLogger(logger)}
	if opts.Export != "" {
		if err := os.MkdirAll(opts.Export, 0755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create export directory", err)
		}
		storeOpts = append(storeOpts, store.WithCSVExport(opts.Export, opts.Compress))
	}
	st := store.New(storeOpts...)
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group := runner.NewGroup(st, opts.Database, sims,
		runner.WithLogger(logger),
		runner.WithWorkers(workers),
		runner.WithRunIDGenerator(runIDs),
		runner.WithPrune(!opts.NoPrune),
	)
	out.VerboseLog("running %d simulation(s) from %s", len(sims), path)
	res, runErr := group.Run(ctx)
	if runErr != nil && len(res.Failed) == 0 {
		return storeExitError("run failed", runErr)
	}

	summary := RunSummary{
		RunID:     res.RunID,
		Database:  opts.Database,
		Completed: res.Completed,
	}
	if len(res.Failed) > 0 {
		summary.Failed = make(map[string]string, len(res.Failed))
		for name, err := range res.Failed {
			summary.Failed[name] = err.Error()
		}
	}
	if h, err := st.Handle(opts.Database); err == nil {
		summary.Tables, _ = h.TableNames(ctx)
	}

	if err := outputRunSummary(cmd, opts, summary, sims); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d simulation(s) failed", len(res.Failed)), runErr)
	}
	return nil
}

func outputRunSummary(cmd *cobra.Command, opts *RunOptions, s RunSummary, sims []*runner.Simulation) error {
	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: s, RunID: s.RunID}
		if len(s.Failed) > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_RUN_FAILED",
				Message: fmt.Sprintf("%d simulation(s) failed", len(s.Failed)),
			}
		}
		return newFormatter(opts.RootOptions, cmd.OutOrStdout(), nil).encode(resp)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s -> %s\n", s.RunID, s.Database)
	for _, sim := range sims {
		if msg, failed := s.Failed[sim.Name]; failed {
			fmt.Fprintf(w, "%s %s\n  %s\n", mark(false), sim.Name, msg)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", mark(true), sim.Name)
	}
	fmt.Fprintf(w, "\nRun Summary: %d completed, %d failed, %d table(s)\n", len(s.Completed), len(s.Failed), len(s.Tables))
	return nil
}
