package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/simkernel/internal/engine"
	"github.com/roach88/simkernel/internal/runner"
	"github.com/roach88/simkernel/internal/tabular"
)

// Report captures variables into a result table. A row is captured each
// time Event fires (EndOfDay by default). The rows are written once, when
// the simulation completes, including after a failure.
//
// Each entry of Variables is a variable name, optionally followed by
// " as Column" to rename the column.
type Report struct {
	Table     string
	Variables []string
	Event     engine.EventName

	refs  []reportRef
	batch *tabular.Batch
}

type reportRef struct {
	variable string
	column   string
}

func (r *Report) Name() string { return "Report(" + r.Table + ")" }

func (r *Report) Setup(sc *runner.Context) error {
	if r.Table == "" {
		return fmt.Errorf("report needs a table name")
	}
	if len(r.Variables) == 0 {
		return fmt.Errorf("report %s has no variables", r.Table)
	}
	event := r.Event
	if event == "" {
		event = engine.EndOfDay
	}

	r.refs = make([]reportRef, len(r.Variables))
	for i, spec := range r.Variables {
		r.refs[i] = parseRef(spec)
	}
	r.batch = nil

	if err := sc.Clock.Subscribe(event, r.Name(), func(context.Context, engine.Event) error {
		return r.capture(sc.Vars)
	}); err != nil {
		return err
	}
	sc.OnCompleted(func() error {
		return sc.Writer.WriteTable(sc.Simulation, r.Table, r.batch)
	})
	return nil
}

func parseRef(spec string) reportRef {
	spec = strings.TrimSpace(spec)
	if i := strings.Index(strings.ToLower(spec), " as "); i >= 0 {
		return reportRef{variable: strings.TrimSpace(spec[:i]), column: strings.TrimSpace(spec[i+4:])}
	}
	column := spec
	if i := strings.LastIndex(spec, "."); i >= 0 {
		column = spec[i+1:]
	}
	return reportRef{variable: spec, column: column}
}

// capture appends one row. Column types are taken from the first row.
func (r *Report) capture(vars *runner.Variables) error {
	row := make([]any, len(r.refs))
	for i, ref := range r.refs {
		v, ok := vars.Get(ref.variable)
		if !ok {
			return fmt.Errorf("report %s: variable %q not published", r.Table, ref.variable)
		}
		row[i] = v
	}

	if r.batch == nil {
		cols := make([]tabular.Column, len(r.refs))
		for i, ref := range r.refs {
			cols[i] = tabular.Column{Name: ref.column, Type: inferType(row[i])}
		}
		r.batch = tabular.NewBatch(cols...)
	}
	return r.batch.AddRow(row...)
}

func inferType(v any) tabular.ColumnType {
	switch v.(type) {
	case time.Time:
		return tabular.Date
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return tabular.Int
	case float32, float64:
		return tabular.Real
	default:
		return tabular.Text
	}
}
