package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/models"
	"github.com/roach88/simkernel/internal/runner"
	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/testutil"
)

// Result contains the outcome of a scenario run.
type Result struct {
	// Pass is true when every simulation completed and every assertion held.
	Pass bool

	// Errors lists simulation failures and assertion failures, in order.
	Errors []string

	// RunID is the id the run group ran under.
	RunID string

	// Completed lists the simulations that finished, in scenario order.
	Completed []string

	// Failed maps failed simulation names to their error text.
	Failed map[string]string

	// File is the result file the scenario wrote.
	File string
}

// Harness runs scenarios against a result file.
type Harness struct {
	logger *slog.Logger
}

// Run executes scenario with its result file at file, then evaluates the
// scenario's assertions. Simulation and assertion failures are reported in
// the Result; the error return is reserved for scenarios that could not be
// run at all.
func Run(ctx context.Context, scenario *Scenario, file string) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.run(ctx, scenario, file)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario, file string) (*Result, error) {
	sims, err := BuildSimulations(scenario)
	if err != nil {
		return nil, err
	}

	st := store.New(store.WithLogger(h.logger))
	defer st.Close()

	opts := []runner.Option{
		runner.WithLogger(h.logger),
		runner.WithWorkers(scenario.Workers),
		runner.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		runner.WithPrune(!scenario.KeepStale),
	}
	group := runner.NewGroup(st, file, sims, opts...)
	res, runErr := group.Run(ctx)
	if runErr != nil && len(res.Failed) == 0 {
		return nil, fmt.Errorf("run scenario %s: %w", scenario.Name, runErr)
	}

	result := &Result{
		Pass:      true,
		RunID:     res.RunID,
		Completed: res.Completed,
		Failed:    make(map[string]string, len(res.Failed)),
		File:      file,
	}
	for _, sim := range sims {
		if err, ok := res.Failed[sim.Name]; ok {
			result.Failed[sim.Name] = err.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("simulation %s failed: %v", sim.Name, err))
			result.Pass = false
		}
	}

	handle, err := st.Handle(file)
	if err != nil {
		return nil, err
	}
	for _, a := range scenario.Assertions {
		if err := evaluateAssertion(ctx, handle, res, a); err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.Pass = false
		}
	}
	return result, nil
}

// BuildSimulations turns the scenario's simulation specs into runnable
// simulations with freshly constructed models.
func BuildSimulations(scenario *Scenario) ([]*runner.Simulation, error) {
	sims := make([]*runner.Simulation, 0, len(scenario.Simulations))
	for i, spec := range scenario.Simulations {
		start, err := time.Parse(DateLayout, spec.Start)
		if err != nil {
			return nil, fmt.Errorf("simulations[%d]: start: %w", i, err)
		}
		end, err := time.Parse(DateLayout, spec.End)
		if err != nil {
			return nil, fmt.Errorf("simulations[%d]: end: %w", i, err)
		}

		sim := &runner.Simulation{Name: spec.Name, Start: start, End: end}
		for j, m := range spec.Models {
			model, err := buildModel(m)
			if err != nil {
				return nil, fmt.Errorf("simulations[%d].models[%d]: %w", i, j, err)
			}
			sim.Models = append(sim.Models, model)
		}
		sims = append(sims, sim)
	}
	return sims, nil
}

func buildModel(m ModelSpec) (runner.Model, error) {
	switch m.Type {
	case ModelSummary:
		return models.Summary{}, nil
	case ModelWeather:
		return &models.SyntheticWeather{MeanT: m.MeanT, Amplitude: m.Amplitude, Amount: m.Rain}, nil
	case ModelAccumulator:
		return &models.Accumulator{Variable: m.Variable, Source: m.Source}, nil
	case ModelReport:
		return &models.Report{
			Table:     m.Table,
			Variables: append([]string(nil), m.Variables...),
			Event:     engine.EventName(m.Event),
		}, nil
	default:
		return nil, fmt.Errorf("unknown model type %q", m.Type)
	}
}
