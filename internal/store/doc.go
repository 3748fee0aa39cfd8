// Package store provides the SQLite-backed result store shared by every
// simulation in a run group.
//
// The store is organised around one batch context, Store, which owns:
//   - Locking table: one mutex per physical result file
//   - Connection handles: one Handle per file, read-only until a write needs it
//   - Write queue: rows enqueued by producers while simulations run
//   - Metrics: queue depth, rows written, flush duration, lock wait
//
// # Write path
//
// Producers call Writer.WriteTable while their simulation runs. The call only
// appends to the write queue and never touches the file. When the run group
// completes, OnRunGroupCompleted flushes each file: entries are drained as
// one snapshot, grouped by table, and each group is merge-written in a single
// transaction (column union, simulation id resolution, additive schema
// evolution).
//
// # Persisted layout
//
//   - _Simulations(ID, Name): registry, always the first table
//   - _Messages(SimulationID, ComponentName, Date, Message, MessageType): always the second
//   - _Units(TableName, ColumnHeading, Units): created when a producer declares units
//   - every other table: producer-defined, SimulationID first
//
// # Locking discipline
//
// Every schema or row mutation takes the file's lock for exactly one
// statement or transaction. The lock is always taken before a connection is
// checked out of the pool and never while rows are open, so a goroutine
// holding the lock never waits on a goroutine that waits for the lock.
// Readers do not take the lock.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for other processes' locks up to 5 seconds
//   - _txlock=immediate: write transactions take the reserved lock up front
package store
