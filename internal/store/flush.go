package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/simkernel/internal/tabular"
)

// Flush merge-writes every queued entry for file.
//
// Entries are drained as one snapshot and grouped by table name
// (case-insensitive, first spelling wins). Each table is written in its own
// transaction; a failing table is rolled back and reported while its
// siblings still commit. Failed entries are not re-queued. A file with
// nothing queued is not opened.
func (s *Store) Flush(ctx context.Context, file string) error {
	h, err := s.Handle(file)
	if err != nil {
		return err
	}
	if s.queue.LenFor(h.path) == 0 {
		return nil
	}

	// Open before draining so an unavailable file keeps its entries queued.
	if err := h.Open(ctx, true); err != nil {
		s.metrics.FlushErrors.Inc()
		s.logger.Error("flush aborted", "file", h.path, "error", err)
		return err
	}

	entries := s.queue.DrainFor(h.path)
	s.metrics.QueueDepth.Set(float64(s.queue.Len()))

	start := time.Now()
	defer func() { s.metrics.FlushDuration.Observe(time.Since(start).Seconds()) }()

	var errs []error
	for _, g := range groupByTable(entries) {
		n, err := h.mergeWrite(ctx, g.name, g.entries)
		if err != nil {
			s.metrics.FlushErrors.Inc()
			s.logger.Error("table flush failed",
				"file", h.path,
				"table", g.name,
				"entries", len(g.entries),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		s.metrics.RowsWritten.Add(float64(n))
		s.logger.Debug("table flushed", "file", h.path, "table", g.name, "rows", n)
	}
	return errors.Join(errs...)
}

type tableGroup struct {
	name    string
	entries []PendingWrite
}

// groupByTable buckets entries by folded table name, preserving the order
// in which tables and entries were first seen.
func groupByTable(entries []PendingWrite) []tableGroup {
	var groups []tableGroup
	pos := make(map[string]int)
	for _, e := range entries {
		key := tabular.FoldName(e.TableName)
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, tableGroup{name: e.TableName})
		}
		groups[i].entries = append(groups[i].entries, e)
	}
	return groups
}

// mergeInput is one entry prepared for insertion.
type mergeInput struct {
	entry   PendingWrite
	batch   *tabular.Batch
	idCol   int // batch column holding SimulationID, or -1
	nameCol int // batch column holding SimulationName, or -1
	id      any // SimulationID stamped on rows without their own
	names   map[string]int64
}

func (in *mergeInput) rowID(row []any) any {
	if in.nameCol >= 0 {
		if name, ok := row[in.nameCol].(string); ok && name != "" {
			return in.names[tabular.FoldName(name)]
		}
	}
	return in.id
}

// mergeWrite writes one table's entries: union the columns with SimulationID
// first, check them against the persisted schema, resolve simulation ids,
// extend the table, then insert every row in one transaction.
func (h *Handle) mergeWrite(ctx context.Context, table string, entries []PendingWrite) (int, error) {
	inputs := make([]mergeInput, 0, len(entries))
	sets := make([][]tabular.Column, 0, len(entries))
	for _, e := range entries {
		if e.Batch == nil {
			continue
		}
		in := mergeInput{
			entry:   e,
			batch:   e.Batch,
			idCol:   e.Batch.Index(SimulationIDColumn),
			nameCol: e.Batch.Index(SimulationNameColumn),
		}
		if err := e.Batch.Validate(); err != nil {
			return 0, schemaConflict(h.path, table, err)
		}

		cols := make([]tabular.Column, 0, len(e.Batch.Columns))
		for i, c := range e.Batch.Columns {
			if i != in.nameCol {
				cols = append(cols, c)
			}
		}
		sets = append(sets, cols)
		inputs = append(inputs, in)
	}

	cols, err := tabular.UnionColumns(simulationIDColumn(), sets...)
	if err != nil {
		return 0, schemaConflict(h.path, table, err)
	}

	db, err := h.writeDB(ctx)
	if err != nil {
		return 0, err
	}
	existing, ok, err := tableColumns(ctx, db, table)
	if err != nil {
		return 0, writeFailure(h.path, table, err)
	}
	if ok {
		if err := checkPersisted(existing, cols); err != nil {
			return 0, schemaConflict(h.path, table, err)
		}
	}

	for i := range inputs {
		if err := h.resolveInput(ctx, &inputs[i]); err != nil {
			return 0, err
		}
	}

	if _, err := h.EnsureTable(ctx, table, cols); err != nil {
		return 0, err
	}

	n, err := h.insertRows(ctx, db, table, cols, inputs)
	if err != nil {
		return 0, writeFailure(h.path, table, err)
	}

	if err := h.recordUnits(ctx, db, table, cols); err != nil {
		h.logger.Warn("units not recorded", "table", table, "error", err)
	}
	return n, nil
}

// resolveInput fills in the SimulationID values for an entry whose batch
// does not carry them.
func (h *Handle) resolveInput(ctx context.Context, in *mergeInput) error {
	if in.idCol >= 0 {
		return nil
	}

	e := in.entry
	switch {
	case e.SimulationID != 0:
		in.id = e.SimulationID
	case e.SimulationName != "":
		id, err := h.ResolveID(ctx, e.SimulationName)
		if err != nil {
			return err
		}
		in.id = id
	}

	if in.nameCol < 0 {
		return nil
	}
	in.names = make(map[string]int64)
	for _, row := range in.batch.Rows {
		name, _ := row[in.nameCol].(string)
		if name == "" {
			continue
		}
		key := tabular.FoldName(name)
		if _, done := in.names[key]; done {
			continue
		}
		id, err := h.ResolveID(ctx, name)
		if err != nil {
			return err
		}
		in.names[key] = id
	}
	return nil
}

// checkPersisted rejects incoming columns whose type cannot be stored in the
// existing column of the same name.
func checkPersisted(existing, incoming []tabular.Column) error {
	byName := make(map[string]tabular.Column, len(existing))
	for _, c := range existing {
		byName[tabular.FoldName(c.Name)] = c
	}
	for _, c := range incoming {
		have, ok := byName[tabular.FoldName(c.Name)]
		if !ok || tabular.Assignable(have.Type, c.Type) {
			continue
		}
		return &tabular.TypeConflict{Column: have.Name, Existing: have.Type, Incoming: c.Type}
	}
	return nil
}

func (h *Handle) insertRows(ctx context.Context, db *sqlx.DB, table string, cols []tabular.Column, inputs []mergeInput) (int, error) {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quote(c.Name)
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(names, ", "), strings.Join(marks, ", "))

	release, err := h.locks.acquire(ctx, h.path)
	if err != nil {
		return 0, err
	}
	defer release()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ins, err := tx.PreparexContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	n := 0
	args := make([]any, len(cols))
	for _, in := range inputs {
		pos := make([]int, len(cols))
		for j, c := range cols {
			pos[j] = in.batch.Index(c.Name)
		}

		for r, row := range in.batch.Rows {
			for j, c := range cols {
				switch {
				case j == 0 && in.idCol < 0:
					args[j] = in.rowID(row)
				case pos[j] < 0:
					args[j] = nil
				default:
					args[j] = tabular.Normalize(c.Type, row[pos[j]])
				}
			}
			if _, err := ins.ExecContext(ctx, args...); err != nil {
				return 0, fmt.Errorf("insert row %d: %w", r, err)
			}
			n++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// recordUnits upserts the declared units of cols into _Units.
func (h *Handle) recordUnits(ctx context.Context, db *sqlx.DB, table string, cols []tabular.Column) error {
	var withUnits []tabular.Column
	for _, c := range cols {
		if c.Units != "" {
			withUnits = append(withUnits, c)
		}
	}
	if len(withUnits) == 0 {
		return nil
	}

	release, err := h.locks.acquire(ctx, h.path)
	if err != nil {
		return err
	}
	defer release()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS "_Units" (
			"TableName"     char(50),
			"ColumnHeading" char(50),
			"Units"         char(50),
			UNIQUE("TableName", "ColumnHeading")
		)
	`); err != nil {
		return fmt.Errorf("create units table: %w", err)
	}

	for _, c := range withUnits {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO "_Units" ("TableName", "ColumnHeading", "Units") VALUES (?, ?, ?)`,
			table, c.Name, c.Units,
		); err != nil {
			return fmt.Errorf("record units of %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}
