package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Seed tables only
// 1 - Index on _Messages.SimulationID
const currentSchemaVersion = 1

// Seed table names.
const (
	SimulationsTable = "_Simulations"
	MessagesTable    = "_Messages"
	UnitsTable       = "_Units"
)

// SimulationIDColumn is the first column of every result table.
const SimulationIDColumn = "SimulationID"

// SimulationNameColumn is a per-row producer column converted to SimulationID on flush.
const SimulationNameColumn = "SimulationName"

var dsnEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// Handle is the connection to one physical result file.
//
// A handle starts disconnected. Reads open it read-only; the first write
// reopens it read-write. A missing file is always created read-write with
// the seed tables, even on a read request. The handle also owns the
// simulation id cache for its file (see ResolveID).
type Handle struct {
	path    string
	locks   *lockTable
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	db       *sqlx.DB
	readOnly bool
	// retired holds read-only pools replaced by an upgrade. Readers may
	// still be using them; they are closed on Disconnect.
	retired []*sqlx.DB

	idMu    sync.Mutex
	ids     map[string]int64
	resolve singleflight.Group
}

func newHandle(path string, locks *lockTable, metrics *Metrics, logger *slog.Logger) *Handle {
	return &Handle{
		path:    path,
		locks:   locks,
		metrics: metrics,
		logger:  logger.With("file", path),
	}
}

// Path returns the absolute path of the result file.
func (h *Handle) Path() string {
	return h.path
}

// Connected reports whether the handle holds an open connection.
func (h *Handle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db != nil
}

// ReadOnly reports whether the open connection is read-only.
// A disconnected handle reports false.
func (h *Handle) ReadOnly() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db != nil && h.readOnly
}

// Open connects the handle. It is a no-op if the handle is already open in a
// sufficient mode; a read-only handle asked for writing is reopened
// read-write. The replaced read-only pool stays usable by readers that
// already hold it until Disconnect. Opening is serialized per file through
// the lock table. On failure the handle keeps its previous connection.
func (h *Handle) Open(ctx context.Context, forWriting bool) error {
	if h.sufficient(forWriting) {
		return nil
	}

	release, err := h.locks.acquire(ctx, h.path)
	if err != nil {
		return unavailableError(h.path, err)
	}
	defer release()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil && (!forWriting || !h.readOnly) {
		return nil
	}

	if _, err := os.Stat(h.path); errors.Is(err, fs.ErrNotExist) {
		forWriting = true
	}

	db, err := openDB(ctx, h.path, forWriting)
	if err != nil {
		return unavailableError(h.path, err)
	}

	if h.db != nil {
		h.db.SetMaxIdleConns(0)
		h.retired = append(h.retired, h.db)
	}
	h.db = db
	h.readOnly = !forWriting
	h.resetIDs()

	h.logger.Debug("result store opened", "read_only", h.readOnly)
	return nil
}

func (h *Handle) sufficient(forWriting bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db != nil && (!forWriting || !h.readOnly)
}

// Disconnect closes the connection. Disconnecting a closed handle is a no-op.
func (h *Handle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	errs := []error{h.db.Close()}
	for _, old := range h.retired {
		errs = append(errs, old.Close())
	}
	h.db = nil
	h.retired = nil
	h.readOnly = false
	h.resetIDs()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close %s: %w", h.path, err)
	}
	return nil
}

// readDB returns a connection usable for reads, opening one if needed.
func (h *Handle) readDB(ctx context.Context) (*sqlx.DB, error) {
	if err := h.Open(ctx, false); err != nil {
		return nil, err
	}
	return h.current()
}

// writeDB returns a read-write connection, upgrading if needed.
func (h *Handle) writeDB(ctx context.Context) (*sqlx.DB, error) {
	if err := h.Open(ctx, true); err != nil {
		return nil, err
	}
	return h.current()
}

func (h *Handle) current() (*sqlx.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil, unavailableError(h.path, errors.New("handle disconnected"))
	}
	return h.db, nil
}

// openDB opens path and, for writers, applies pragmas and the seed schema.
func openDB(ctx context.Context, path string, forWriting bool) (*sqlx.DB, error) {
	dsn := "file:" + dsnEscaper.Replace(path) + "?_busy_timeout=5000&_foreign_keys=1"
	if forWriting {
		dsn += "&mode=rwc&_txlock=immediate"
	} else {
		dsn += "&mode=ro"
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids SQLITE_BUSY
	// between our own goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if !forWriting {
		return db, nil
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates the seed tables and runs migrations. Idempotent.
func applySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	var version int
	if err := db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_messages_simulation
			ON "_Messages"("SimulationID")
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if version < currentSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (h *Handle) verifyPragma(ctx context.Context, name, expected string) error {
	db, err := h.current()
	if err != nil {
		return err
	}
	var value string
	if err := db.GetContext(ctx, &value, "PRAGMA "+name); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// quote returns name as a double-quoted SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
