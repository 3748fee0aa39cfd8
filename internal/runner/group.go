package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/tabular"
)

// Result summarises one run group.
type Result struct {
	RunID     string
	Completed []string
	Failed    map[string]error
}

// Group runs a set of simulations that share one result file.
type Group struct {
	store   *store.Store
	file    string
	sims    []*Simulation
	workers int
	prune   bool
	ids     engine.RunIDGenerator
	logger  *slog.Logger
}

// Option configures a Group.
type Option func(*Group)

// WithWorkers bounds how many simulations run at once. Values below one
// mean one.
func WithWorkers(n int) Option {
	return func(g *Group) {
		if n < 1 {
			n = 1
		}
		g.workers = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Group) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithRunIDGenerator sets the run id source. Defaults to UUIDv7.
func WithRunIDGenerator(ids engine.RunIDGenerator) Option {
	return func(g *Group) {
		g.ids = ids
	}
}

// WithPrune controls commencing maintenance: removing simulations not in
// the group and clearing rows of those about to re-run. Enabled by default.
func WithPrune(enabled bool) Option {
	return func(g *Group) {
		g.prune = enabled
	}
}

// NewGroup creates a run group writing to file through st.
func NewGroup(st *store.Store, file string, sims []*Simulation, opts ...Option) *Group {
	g := &Group{
		store:   st,
		file:    file,
		sims:    sims,
		workers: 1,
		prune:   true,
		ids:     engine.UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run executes the group: commencing maintenance, every simulation
// (concurrently, up to the worker limit), then the store's run-group
// completion. A failed simulation does not stop its siblings, and rows it
// enqueued before failing are still flushed.
func (g *Group) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: g.ids.Generate(), Failed: make(map[string]error)}
	logger := g.logger.With("run_id", res.RunID, "file", g.file)

	if err := g.checkNames(); err != nil {
		return res, err
	}

	w, err := g.store.Writer(g.file)
	if err != nil {
		return res, err
	}
	if g.prune {
		if err := g.commence(ctx); err != nil {
			return res, fmt.Errorf("commence run group: %w", err)
		}
	}

	logger.Info("run group starting", "simulations", len(g.sims), "workers", g.workers)

	var (
		mu  sync.Mutex
		eg  errgroup.Group
		ord = make(map[string]int, len(g.sims))
	)
	eg.SetLimit(g.workers)
	for i, sim := range g.sims {
		ord[sim.Name] = i
		eg.Go(func() error {
			err := sim.run(ctx, w, logger)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("simulation failed", "simulation", sim.Name, "error", err)
				res.Failed[sim.Name] = err
				return nil
			}
			res.Completed = append(res.Completed, sim.Name)
			return nil
		})
	}
	_ = eg.Wait()

	slices.SortFunc(res.Completed, func(a, b string) int { return ord[a] - ord[b] })

	var errs []error
	for _, sim := range g.sims {
		if err, ok := res.Failed[sim.Name]; ok {
			errs = append(errs, fmt.Errorf("simulation %s: %w", sim.Name, err))
		}
	}
	if err := g.store.OnRunGroupCompleted(ctx); err != nil {
		errs = append(errs, fmt.Errorf("complete run group: %w", err))
	}

	logger.Info("run group finished", "completed", len(res.Completed), "failed", len(res.Failed))
	return res, errors.Join(errs...)
}

func (g *Group) commence(ctx context.Context) error {
	h, err := g.store.Handle(g.file)
	if err != nil {
		return err
	}
	names := g.names()
	if _, err := h.RemoveUnwantedSimulations(ctx, names); err != nil {
		return err
	}
	return h.ClearSimulations(ctx, names)
}

func (g *Group) names() []string {
	out := make([]string, len(g.sims))
	for i, s := range g.sims {
		out[i] = s.Name
	}
	return out
}

// checkNames rejects empty and duplicate simulation names.
func (g *Group) checkNames() error {
	seen := make(map[string]bool, len(g.sims))
	for _, s := range g.sims {
		if s.Name == "" {
			return errors.New("simulation name required")
		}
		key := tabular.FoldName(s.Name)
		if seen[key] {
			return fmt.Errorf("duplicate simulation name %q", s.Name)
		}
		seen[key] = true
	}
	return nil
}
