package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/simkernel/internal/tabular"
)

type columnInfo struct {
	Name string `db:"name"`
	Type string `db:"type"`
}

// tableColumns returns the persisted columns of table in declaration order.
// ok is false when the table does not exist.
func tableColumns(ctx context.Context, q sqlx.QueryerContext, table string) (cols []tabular.Column, ok bool, err error) {
	var infos []columnInfo
	if err := sqlx.SelectContext(ctx, q, &infos, `SELECT name, type FROM pragma_table_info(?)`, table); err != nil {
		return nil, false, fmt.Errorf("read columns of %s: %w", table, err)
	}
	if len(infos) == 0 {
		return nil, false, nil
	}

	cols = make([]tabular.Column, len(infos))
	for i, info := range infos {
		cols[i] = tabular.Column{Name: info.Name, Type: tabular.ParseSQLType(info.Type)}
	}
	return cols, true, nil
}

// EnsureTable makes table exist with at least cols, creating it or adding
// the missing columns. SimulationID is always the first column of a created
// table. Each CREATE and each ALTER is a separate mutation under the file's
// lock; a column added concurrently by another writer is not an error.
// Returns the names of the columns this call added.
func (h *Handle) EnsureTable(ctx context.Context, table string, cols []tabular.Column) ([]string, error) {
	if table == "" {
		return nil, configurationError("table name required")
	}
	cols, err := tabular.UnionColumns(simulationIDColumn(), cols)
	if err != nil {
		return nil, schemaConflict(h.path, table, err)
	}

	db, err := h.writeDB(ctx)
	if err != nil {
		return nil, err
	}

	existing, ok, err := tableColumns(ctx, db, table)
	if err != nil {
		return nil, writeFailure(h.path, table, err)
	}

	if !ok {
		if err := h.mutate(ctx, db, createTableSQL(table, cols)); err != nil {
			return nil, writeFailure(h.path, table, err)
		}
		// A concurrent creator may have won with a different column set.
		existing, _, err = tableColumns(ctx, db, table)
		if err != nil {
			return nil, writeFailure(h.path, table, err)
		}
		if sameColumnNames(existing, cols) {
			h.logger.Debug("table created", "table", table, "columns", len(cols))
			return nil, nil
		}
	}

	var added []string
	for _, col := range tabular.Missing(cols, existing) {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(table), quote(col.Name), col.Type.SQLType())
		if err := h.mutate(ctx, db, stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return added, writeFailure(h.path, table, err)
		}
		added = append(added, col.Name)
	}

	if len(added) > 0 {
		h.logger.Debug("table extended", "table", table, "added", added)
	}
	return added, nil
}

// mutate runs one statement under the file's lock.
func (h *Handle) mutate(ctx context.Context, db *sqlx.DB, stmt string, args ...any) error {
	release, err := h.locks.acquire(ctx, h.path)
	if err != nil {
		return err
	}
	defer release()

	_, err = db.ExecContext(ctx, stmt, args...)
	return err
}

func createTableSQL(table string, cols []tabular.Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quote(c.Name) + " " + c.Type.SQLType()
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
}

func simulationIDColumn() tabular.Column {
	return tabular.Column{Name: SimulationIDColumn, Type: tabular.Int}
}

func sameColumnNames(a, b []tabular.Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if tabular.FoldName(a[i].Name) != tabular.FoldName(b[i].Name) {
			return false
		}
	}
	return true
}

func isDuplicateColumn(err error) bool {
	return strings.Contains(err.Error(), "duplicate column name")
}
