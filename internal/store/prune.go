package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/simkernel/internal/tabular"
)

// RemoveUnwantedSimulations deletes every registered simulation whose name
// is not in keep, together with its rows in every result table. It returns
// the removed names. Used before a run group so the file only describes the
// simulations about to run.
func (h *Handle) RemoveUnwantedSimulations(ctx context.Context, keep []string) ([]string, error) {
	wanted := make(map[string]bool, len(keep))
	for _, n := range keep {
		wanted[tabular.FoldName(n)] = true
	}

	db, err := h.writeDB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := selectSimulations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("load simulations: %w", err)
	}

	var ids []int64
	var removed []string
	for _, r := range rows {
		if !wanted[tabular.FoldName(r.Name)] {
			ids = append(ids, r.ID)
			removed = append(removed, r.Name)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := h.deleteRows(ctx, db, ids); err != nil {
		return nil, err
	}

	query, args, err := sqlx.In(`DELETE FROM "_Simulations" WHERE "ID" IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build delete: %w", err)
	}
	if err := h.mutate(ctx, db, query, args...); err != nil {
		return nil, writeFailure(h.path, SimulationsTable, err)
	}
	h.resetIDs()

	h.logger.Info("simulations removed", "removed", removed)
	return removed, nil
}

// ClearSimulations deletes the rows of the named simulations from every
// result table, keeping their registry entries and ids. Unknown names are
// ignored.
func (h *Handle) ClearSimulations(ctx context.Context, names []string) error {
	var ids []int64
	for _, n := range names {
		id, ok, err := h.LookupID(ctx, n)
		if err != nil {
			return err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	db, err := h.writeDB(ctx)
	if err != nil {
		return err
	}
	return h.deleteRows(ctx, db, ids)
}

// deleteRows removes rows for ids from every table carrying SimulationID.
// Each table is one mutation.
func (h *Handle) deleteRows(ctx context.Context, db *sqlx.DB, ids []int64) error {
	tables, err := h.TableNames(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		cols, _, err := tableColumns(ctx, db, table)
		if err != nil {
			return writeFailure(h.path, table, err)
		}
		if !hasColumn(cols, SimulationIDColumn) {
			continue
		}
		query, args, err := sqlx.In(
			fmt.Sprintf("DELETE FROM %s WHERE %s IN (?)", quote(table), quote(SimulationIDColumn)), ids)
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if err := h.mutate(ctx, db, query, args...); err != nil {
			return writeFailure(h.path, table, err)
		}
	}
	return nil
}
