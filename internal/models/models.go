// Package models provides minimal simulation components that publish
// variables and produce result rows. They exist to drive the clock and the
// result store; none of them models real biophysics.
package models

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/runner"
	"github.com/roach88/simkernel/internal/store"
)

// Summary writes lifecycle messages for its simulation.
type Summary struct{}

func (Summary) Name() string { return "Summary" }

func (s Summary) Setup(sc *runner.Context) error {
	if err := sc.Clock.Subscribe(engine.StartOfSimulation, s.Name(), func(_ context.Context, ev engine.Event) error {
		return sc.Writer.WriteMessage(sc.Simulation, ev.Date, s.Name(), "Simulation started", store.Information)
	}); err != nil {
		return err
	}
	return sc.Clock.Subscribe(engine.EndOfSimulation, s.Name(), func(_ context.Context, ev engine.Event) error {
		return sc.Writer.WriteMessage(sc.Simulation, ev.Date, s.Name(), "Simulation terminated normally", store.Information)
	})
}

// SyntheticWeather publishes closed-form daily weather updated on Tick:
// temperatures follow a sine of day of year peaking mid-July, and it rains
// Amount mm every seventh day of the year.
type SyntheticWeather struct {
	MeanT     float64
	Amplitude float64
	Amount    float64

	maxT, minT, rain float64
}

func (w *SyntheticWeather) Name() string { return "Weather" }

func (w *SyntheticWeather) Setup(sc *runner.Context) error {
	for name, g := range map[string]runner.Getter{
		"Weather.MaxT": func() any { return w.maxT },
		"Weather.MinT": func() any { return w.minT },
		"Weather.Rain": func() any { return w.rain },
	} {
		if err := sc.Vars.Publish(name, g); err != nil {
			return err
		}
	}
	return sc.Clock.Subscribe(engine.Tick, w.Name(), func(_ context.Context, ev engine.Event) error {
		w.update(ev.Date)
		return nil
	})
}

func (w *SyntheticWeather) update(day time.Time) {
	doy := day.YearDay()
	phase := 2 * math.Pi * float64(doy-105) / 365
	mean := w.MeanT + w.Amplitude*math.Sin(phase)
	w.maxT = mean + 5
	w.minT = mean - 5
	w.rain = 0
	if doy%7 == 0 {
		w.rain = w.Amount
	}
}

// Accumulator publishes the running sum of a numeric variable, added on
// EndOfDay.
type Accumulator struct {
	Variable string
	Source   string

	total float64
}

func (a *Accumulator) Name() string { return "Accumulator(" + a.Variable + ")" }

func (a *Accumulator) Setup(sc *runner.Context) error {
	if a.Variable == "" || a.Source == "" {
		return fmt.Errorf("accumulator needs variable and source")
	}
	if err := sc.Vars.Publish(a.Variable, func() any { return a.total }); err != nil {
		return err
	}
	return sc.Clock.Subscribe(engine.EndOfDay, a.Name(), func(context.Context, engine.Event) error {
		v, err := sc.Vars.Float(a.Source)
		if err != nil {
			return err
		}
		a.total += v
		return nil
	})
}
