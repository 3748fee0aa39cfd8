package store

import (
	"fmt"
	"time"

	"github.com/roach88/simkernel/internal/tabular"
)

// Severity classifies a _Messages row.
type Severity int

const (
	Information Severity = iota + 1
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Information:
		return "Information"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// messageColumns is the producer-side layout of _Messages.
var messageColumns = []tabular.Column{
	{Name: "ComponentName", Type: tabular.Text},
	{Name: "Date", Type: tabular.Date},
	{Name: "Message", Type: tabular.Text},
	{Name: "MessageType", Type: tabular.Int},
}

// Writer enqueues rows for one result file. Writes are buffered in memory
// and persisted when the store flushes the file; no call blocks on I/O.
// A Writer is safe for concurrent use.
type Writer struct {
	store *Store
	file  string
}

// File returns the absolute path the writer targets.
func (w *Writer) File() string {
	return w.file
}

// WriteTable enqueues batch for table on behalf of the named simulation.
// The batch is copied; the caller may reuse it. A nil batch is ignored.
func (w *Writer) WriteTable(simulationName, table string, batch *tabular.Batch) error {
	if table == "" {
		return configurationError("table name required")
	}
	if batch == nil {
		return nil
	}
	if err := w.store.queue.Enqueue(PendingWrite{
		File:           w.file,
		SimulationName: simulationName,
		TableName:      table,
		Batch:          batch.Clone(),
	}); err != nil {
		return err
	}
	w.store.metrics.QueueDepth.Inc()
	return nil
}

// WriteTableForID is WriteTable for a producer that already holds its
// simulation id.
func (w *Writer) WriteTableForID(simulationID int64, table string, batch *tabular.Batch) error {
	if table == "" {
		return configurationError("table name required")
	}
	if batch == nil {
		return nil
	}
	if err := w.store.queue.Enqueue(PendingWrite{
		File:         w.file,
		SimulationID: simulationID,
		TableName:    table,
		Batch:        batch.Clone(),
	}); err != nil {
		return err
	}
	w.store.metrics.QueueDepth.Inc()
	return nil
}

// WriteMessage enqueues one _Messages row.
func (w *Writer) WriteMessage(simulationName string, date time.Time, component, message string, severity Severity) error {
	b := tabular.NewBatch(messageColumns...)
	if err := b.AddRow(component, date, message, int64(severity)); err != nil {
		return fmt.Errorf("build message row: %w", err)
	}
	return w.WriteTable(simulationName, MessagesTable, b)
}
