package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/simkernel/internal/tabular"
)

// AllSimulations selects every simulation's rows in GetData.
const AllSimulations = "*"

// TableExists reports whether table exists (case-insensitive).
func (h *Handle) TableExists(ctx context.Context, table string) (bool, error) {
	db, err := h.readDB(ctx)
	if err != nil {
		return false, err
	}
	_, ok, err := lookupTable(ctx, db, table)
	return ok, err
}

// TableNames returns every table except the simulation registry, in
// creation order. _Messages is always first.
func (h *Handle) TableNames(ctx context.Context) ([]string, error) {
	names, err := h.allTables(ctx)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if n != SimulationsTable {
			out = append(out, n)
		}
	}
	return out, nil
}

func (h *Handle) allTables(ctx context.Context) ([]string, error) {
	db, err := h.readDB(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := db.SelectContext(ctx, &names, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY rowid
	`); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// GetData returns the rows of table written by the named simulation, or
// every row when simulationName is AllSimulations. A missing table, an
// unknown simulation, or a table without a SimulationID column yields a
// nil batch and no error.
func (h *Handle) GetData(ctx context.Context, simulationName, table string) (*tabular.Batch, error) {
	db, err := h.readDB(ctx)
	if err != nil {
		return nil, err
	}
	name, ok, err := lookupTable(ctx, db, table)
	if err != nil || !ok {
		return nil, err
	}

	if simulationName == AllSimulations {
		return queryBatch(ctx, db, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", quote(name)))
	}

	cols, _, err := tableColumns(ctx, db, name)
	if err != nil {
		return nil, err
	}
	if !hasColumn(cols, SimulationIDColumn) {
		return nil, nil
	}
	id, found, err := h.LookupID(ctx, simulationName)
	if err != nil || !found {
		return nil, err
	}
	return queryBatch(ctx, db,
		fmt.Sprintf("SELECT * FROM %s WHERE %s = ? ORDER BY rowid", quote(name), quote(SimulationIDColumn)),
		id,
	)
}

// RunQuery runs an arbitrary read query and returns its result set.
func (h *Handle) RunQuery(ctx context.Context, query string, args ...any) (*tabular.Batch, error) {
	db, err := h.readDB(ctx)
	if err != nil {
		return nil, err
	}
	return queryBatch(ctx, db, query, args...)
}

// lookupTable returns the stored spelling of table.
func lookupTable(ctx context.Context, q sqlx.QueryerContext, table string) (string, bool, error) {
	var names []string
	if err := sqlx.SelectContext(ctx, q, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, table,
	); err != nil {
		return "", false, fmt.Errorf("look up table %s: %w", table, err)
	}
	if len(names) == 0 {
		return "", false, nil
	}
	return names[0], true, nil
}

// queryBatch materialises a result set. Column types come from the declared
// SQL types; expressions without one are Text.
func queryBatch(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*tabular.Batch, error) {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	cols := make([]tabular.Column, len(types))
	for i, ct := range types {
		cols[i] = tabular.Column{Name: ct.Name(), Type: tabular.ParseSQLType(ct.DatabaseTypeName())}
	}

	b := tabular.NewBatch(cols...)
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			if raw, ok := v.([]byte); ok {
				vals[i] = string(raw)
			}
		}
		b.Rows = append(b.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return b, nil
}

func hasColumn(cols []tabular.Column, name string) bool {
	key := tabular.FoldName(name)
	for _, c := range cols {
		if tabular.FoldName(c.Name) == key {
			return true
		}
	}
	return false
}
