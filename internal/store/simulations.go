package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/simkernel/internal/tabular"
)

type simulationRow struct {
	ID   int64  `db:"ID"`
	Name string `db:"Name"`
}

// ResolveID maps a simulation name to its registry id, inserting the name
// when it is new. Matching is case-insensitive. An empty name resolves to 0
// without touching the registry.
//
// Concurrent callers for the same name share one lookup; the insert re-checks
// the registry inside an immediate transaction under the file's lock, so a
// name is registered at most once even across processes.
func (h *Handle) ResolveID(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, nil
	}
	key := tabular.FoldName(name)
	if id, ok := h.cachedID(key); ok {
		return id, nil
	}

	v, err, _ := h.resolve.Do(key, func() (any, error) {
		return h.resolveSlow(ctx, key, name)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (h *Handle) resolveSlow(ctx context.Context, key, name string) (int64, error) {
	db, err := h.writeDB(ctx)
	if err != nil {
		return 0, err
	}

	if err := h.loadIDs(ctx, db); err != nil {
		return 0, writeFailure(h.path, SimulationsTable, err)
	}
	if id, ok := h.cachedID(key); ok {
		return id, nil
	}

	release, err := h.locks.acquire(ctx, h.path)
	if err != nil {
		return 0, writeFailure(h.path, SimulationsTable, err)
	}
	defer release()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, writeFailure(h.path, SimulationsTable, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	var rows []simulationRow
	if err := tx.SelectContext(ctx, &rows, `SELECT "ID", "Name" FROM "_Simulations"`); err != nil {
		return 0, writeFailure(h.path, SimulationsTable, err)
	}
	h.storeIDs(rows)
	if id, ok := h.cachedID(key); ok {
		return id, nil
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO "_Simulations" ("Name") VALUES (?)`, name)
	if err != nil {
		return 0, writeFailure(h.path, SimulationsTable, fmt.Errorf("register %q: %w", name, err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, writeFailure(h.path, SimulationsTable, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, writeFailure(h.path, SimulationsTable, fmt.Errorf("commit: %w", err))
	}

	h.idMu.Lock()
	if h.ids == nil {
		h.ids = make(map[string]int64)
	}
	h.ids[key] = id
	h.idMu.Unlock()

	h.logger.Debug("simulation registered", "simulation", name, "simulation_id", id)
	return id, nil
}

// LookupID returns the id of a registered simulation without registering it.
func (h *Handle) LookupID(ctx context.Context, name string) (int64, bool, error) {
	if name == "" {
		return 0, false, nil
	}
	key := tabular.FoldName(name)
	if id, ok := h.cachedID(key); ok {
		return id, true, nil
	}

	db, err := h.readDB(ctx)
	if err != nil {
		return 0, false, err
	}
	if err := h.loadIDs(ctx, db); err != nil {
		return 0, false, fmt.Errorf("load simulations: %w", err)
	}
	id, ok := h.cachedID(key)
	return id, ok, nil
}

// SimulationNames returns every registered simulation name in id order.
func (h *Handle) SimulationNames(ctx context.Context) ([]string, error) {
	db, err := h.readDB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := selectSimulations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("load simulations: %w", err)
	}
	h.storeIDs(rows)

	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	return names, nil
}

func selectSimulations(ctx context.Context, q sqlx.QueryerContext) ([]simulationRow, error) {
	var rows []simulationRow
	err := sqlx.SelectContext(ctx, q, &rows, `SELECT "ID", "Name" FROM "_Simulations" ORDER BY "ID"`)
	return rows, err
}

func (h *Handle) loadIDs(ctx context.Context, db *sqlx.DB) error {
	rows, err := selectSimulations(ctx, db)
	if err != nil {
		return err
	}
	h.storeIDs(rows)
	return nil
}

// storeIDs replaces the cache with the registry contents.
func (h *Handle) storeIDs(rows []simulationRow) {
	ids := make(map[string]int64, len(rows))
	for _, r := range rows {
		ids[tabular.FoldName(r.Name)] = r.ID
	}
	h.idMu.Lock()
	h.ids = ids
	h.idMu.Unlock()
}

func (h *Handle) cachedID(key string) (int64, bool) {
	h.idMu.Lock()
	defer h.idMu.Unlock()
	id, ok := h.ids[key]
	return id, ok
}

func (h *Handle) resetIDs() {
	h.idMu.Lock()
	h.ids = nil
	h.idMu.Unlock()
}
