package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/store"
)

// Model is a simulation component. Setup publishes its variables and
// subscribes its handlers; it runs once, before the clock starts.
type Model interface {
	Name() string
	Setup(sc *Context) error
}

// Context is what a model sees of its simulation.
type Context struct {
	Simulation string
	Clock      *engine.Clock
	Vars       *Variables
	Writer     *store.Writer
	Logger     *slog.Logger

	completed []func() error
}

// OnCompleted registers fn to run once the clock stops, whether the run
// finished or failed. Hooks run in registration order.
func (sc *Context) OnCompleted(fn func() error) {
	sc.completed = append(sc.completed, fn)
}

func (sc *Context) complete() error {
	var errs []error
	for _, fn := range sc.completed {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Simulation is one named clock run over a date range.
type Simulation struct {
	Name   string
	Start  time.Time
	End    time.Time
	Models []Model
}

// Variables published by every simulation.
const (
	VarToday            = "Clock.Today"
	VarDayOfYear        = "Clock.DayOfYear"
	VarFractionComplete = "Clock.FractionComplete"
)

// run builds a fresh clock and model context, sets up every model in order,
// and runs the clock. A failure is also recorded as an Error message.
func (s *Simulation) run(ctx context.Context, w *store.Writer, logger *slog.Logger) error {
	logger = logger.With("simulation", s.Name)
	clock := engine.NewClock(engine.WithLogger(logger))
	vars := NewVariables()

	for name, g := range map[string]Getter{
		VarToday:            func() any { return clock.Today() },
		VarDayOfYear:        func() any { return clock.Today().YearDay() },
		VarFractionComplete: func() any { return clock.FractionComplete() },
	} {
		if err := vars.Publish(name, g); err != nil {
			return err
		}
	}

	sc := &Context{
		Simulation: s.Name,
		Clock:      clock,
		Vars:       vars,
		Writer:     w,
		Logger:     logger,
	}
	for _, m := range s.Models {
		if err := m.Setup(sc); err != nil {
			return fmt.Errorf("set up %s: %w", m.Name(), err)
		}
	}

	logger.Debug("simulation starting", "start", s.Start.Format(time.DateOnly), "end", s.End.Format(time.DateOnly))
	err := clock.Run(ctx, s.Start, s.End)
	if cerr := sc.complete(); cerr != nil {
		if err == nil {
			return fmt.Errorf("complete simulation: %w", cerr)
		}
		logger.Warn("completion after failure", "error", cerr)
	}
	if err != nil {
		if merr := w.WriteMessage(s.Name, clock.Today(), "Runner", err.Error(), store.Error); merr != nil {
			logger.Warn("failure message not queued", "error", merr)
		}
		return err
	}
	return nil
}
