package store

import (
	"sort"
	"sync"

	"github.com/roach88/simkernel/internal/tabular"
)

// PendingWrite is one producer batch awaiting flush.
type PendingWrite struct {
	// File is the absolute path of the target result file.
	File string

	// SimulationName identifies the producing simulation. Empty means the
	// rows carry their own SimulationName column or belong to no simulation.
	SimulationName string

	// SimulationID, when non-zero, is used instead of resolving SimulationName.
	SimulationID int64

	TableName string
	Batch     *tabular.Batch
}

// writeQueue is a thread-safe FIFO of pending writes across all files.
//
// Enqueue order is preserved per file; DrainFor removes a file's entries as
// one atomic snapshot, so entries enqueued during a flush wait for the next.
type writeQueue struct {
	mu      sync.Mutex
	entries []PendingWrite
	closed  bool
}

func newWriteQueue() *writeQueue {
	return &writeQueue{
		entries: make([]PendingWrite, 0, 64),
	}
}

// Enqueue appends w. Fails with QUEUE_CLOSED after close.
func (q *writeQueue) Enqueue(w PendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return &StoreError{Code: CodeQueueClosed, Message: "write queue closed", File: w.File, Table: w.TableName}
	}
	q.entries = append(q.entries, w)
	return nil
}

// DrainFor removes and returns every entry for file, in enqueue order.
func (q *writeQueue) DrainFor(file string) []PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()

	var drained []PendingWrite
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.File == file {
			drained = append(drained, e)
		} else {
			kept = append(kept, e)
		}
	}

	// Nil out the tail so dropped batches can be collected.
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = PendingWrite{}
	}
	q.entries = kept
	return drained
}

// Len returns the total number of queued entries.
func (q *writeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// LenFor returns the number of queued entries for file.
func (q *writeQueue) LenFor(file string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.entries {
		if e.File == file {
			n++
		}
	}
	return n
}

// Files returns the distinct files with queued entries, sorted.
func (q *writeQueue) Files() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]bool)
	var files []string
	for _, e := range q.entries {
		if !seen[e.File] {
			seen[e.File] = true
			files = append(files, e.File)
		}
	}
	sort.Strings(files)
	return files
}

// Close rejects further enqueues and discards what is queued, returning the
// number of discarded entries. Idempotent.
func (q *writeQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	n := len(q.entries)
	q.entries = nil
	return n
}
