package store

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/tabular"
)

// cells renders a batch as header plus string rows.
func cells(b *tabular.Batch) [][]string {
	if b == nil {
		return nil
	}
	header := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		header[i] = c.Name
	}
	out := [][]string{header}
	for _, row := range b.Rows {
		r := make([]string, len(row))
		for i, v := range row {
			r[i] = FormatCell(v)
		}
		out = append(out, r)
	}
	return out
}

func TestFlush_UnionsColumnsAcrossSimulations(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, err := s.Writer(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteTable("wheat", "Report", createTestBatch(t,
		[]tabular.Column{col("Date", tabular.Date), col("Yield", tabular.Real)},
		[]any{date(2000, 1, 1), 1.5},
	)))
	require.NoError(t, w.WriteTable("barley", "Report", createTestBatch(t,
		[]tabular.Column{col("Date", tabular.Date), col("Stage", tabular.Text)},
		[]any{date(2000, 1, 1), "flowering"},
	)))

	require.NoError(t, s.Flush(t.Context(), path))
	assert.Zero(t, s.Pending(path))

	h, _ := s.Handle(path)
	b, err := h.GetData(t.Context(), AllSimulations, "Report")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"SimulationID", "Date", "Yield", "Stage"},
		{"1", "2000-01-01", "1.5", ""},
		{"2", "2000-01-01", "", "flowering"},
	}, cells(b))
}

func TestFlush_LaterFlushAddsColumnToEarlierRows(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, err := s.Writer(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteTable("sim", "Report", createTestBatch(t,
		[]tabular.Column{col("A", tabular.Int), col("B", tabular.Int)},
		[]any{1, 2},
	)))
	require.NoError(t, s.Flush(t.Context(), path))

	require.NoError(t, w.WriteTable("sim", "Report", createTestBatch(t,
		[]tabular.Column{col("A", tabular.Int), col("B", tabular.Int), col("C", tabular.Int)},
		[]any{3, 4, 5},
	)))
	require.NoError(t, s.Flush(t.Context(), path))

	h, _ := s.Handle(path)
	b, err := h.GetData(t.Context(), "sim", "Report")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"SimulationID", "A", "B", "C"},
		{"1", "1", "2", ""},
		{"1", "3", "4", "5"},
	}, cells(b))
	assert.Nil(t, b.Rows[0][3], "rows written before C existed read back null")
}

func TestFlush_UnsignedIntoIntColumn(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, _ := s.Writer(path)

	require.NoError(t, w.WriteTable("sim", "Counts", createTestBatch(t,
		[]tabular.Column{col("N", tabular.Int)},
		[]any{uint(7)},
		[]any{uint64(8)},
	)))
	require.NoError(t, s.Flush(t.Context(), path))

	h, _ := s.Handle(path)
	b, err := h.GetData(t.Context(), "sim", "Counts")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7), int64(8)}, b.Column("N"))
}

func TestFlush_ConvertsSimulationNameColumn(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, _ := s.Writer(path)

	require.NoError(t, w.WriteTable("", "Observed", createTestBatch(t,
		[]tabular.Column{col("SimulationName", tabular.Text), col("Value", tabular.Int)},
		[]any{"a", 1},
		[]any{"B", 2},
		[]any{"A", 3},
	)))
	require.NoError(t, s.Flush(t.Context(), path))

	h, _ := s.Handle(path)
	b, err := h.GetData(t.Context(), AllSimulations, "Observed")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"SimulationID", "Value"},
		{"1", "1"},
		{"2", "2"},
		{"1", "3"},
	}, cells(b))

	names, err := h.SimulationNames(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "B"}, names)
}

func TestFlush_ExplicitSimulationID(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, _ := s.Writer(path)

	require.NoError(t, w.WriteTableForID(7, "Report", createTestBatch(t,
		[]tabular.Column{col("Value", tabular.Real)},
		[]any{2.25},
	)))
	require.NoError(t, s.Flush(t.Context(), path))

	h, _ := s.Handle(path)
	b, err := h.RunQuery(t.Context(), `SELECT "SimulationID", "Value" FROM "Report"`)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"SimulationID", "Value"}, {"7", "2.25"}}, cells(b))
}

func TestFlush_NothingQueuedDoesNotTouchFile(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)

	require.NoError(t, s.Flush(t.Context(), path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file must not be created")
}

func TestFlush_SchemaConflictIsolatedToTable(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := createTestStore(t, WithRegisterer(reg))
	path := testFile(t)
	w, _ := s.Writer(path)

	require.NoError(t, w.WriteTable("sim", "Bad", createTestBatch(t,
		[]tabular.Column{col("X", tabular.Int)}, []any{1})))
	require.NoError(t, w.WriteTable("sim", "Bad", createTestBatch(t,
		[]tabular.Column{col("X", tabular.Text)}, []any{"oops"})))
	require.NoError(t, w.WriteTable("sim", "Good", createTestBatch(t,
		[]tabular.Column{col("Y", tabular.Real)}, []any{2.5})))

	err := s.Flush(t.Context(), path)
	require.Error(t, err)
	assert.True(t, IsSchemaConflict(err))
	assert.False(t, IsWriteFailure(err))

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Bad", se.Table)

	h, _ := s.Handle(path)
	exists, err := h.TableExists(t.Context(), "Bad")
	require.NoError(t, err)
	assert.False(t, exists)

	good, err := h.GetData(t.Context(), "sim", "Good")
	require.NoError(t, err)
	assert.Equal(t, 1, good.Len())

	assert.Zero(t, s.Pending(path), "failed entries are not re-queued")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().FlushErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().RowsWritten))
}

func TestFlush_ConflictWithPersistedColumn(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, _ := s.Writer(path)
	ctx := t.Context()

	require.NoError(t, w.WriteTable("sim", "Report", createTestBatch(t,
		[]tabular.Column{col("Count", tabular.Int), col("Mass", tabular.Real)}, []any{1, 1.5})))
	require.NoError(t, s.Flush(ctx, path))

	// Real into an integer column is rejected.
	require.NoError(t, w.WriteTable("sim", "Report", createTestBatch(t,
		[]tabular.Column{col("Count", tabular.Real)}, []any{1.5})))
	assert.True(t, IsSchemaConflict(s.Flush(ctx, path)))

	// Integer into a real column widens.
	require.NoError(t, w.WriteTable("sim", "Report", createTestBatch(t,
		[]tabular.Column{col("Mass", tabular.Int)}, []any{3})))
	require.NoError(t, s.Flush(ctx, path))

	h, _ := s.Handle(path)
	b, err := h.GetData(ctx, "sim", "Report")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"SimulationID", "Count", "Mass"},
		{"1", "1", "1.5"},
		{"1", "", "3"},
	}, cells(b))
}

func TestFlush_IncompatibleCellIsSchemaConflict(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, _ := s.Writer(path)

	require.NoError(t, w.WriteTable("sim", "Report", createTestBatch(t,
		[]tabular.Column{col("Date", tabular.Date)}, []any{"yesterday"})))

	err := s.Flush(t.Context(), path)
	assert.True(t, IsSchemaConflict(err))

	var ce *tabular.CellError
	assert.ErrorAs(t, err, &ce)
}

func TestFlush_WriteFailureIsolatedToTable(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, _ := s.Writer(path)

	// SQLite reserves the sqlite_ prefix, so creating this table fails.
	require.NoError(t, w.WriteTable("sim", "sqlite_reserved", createTestBatch(t,
		[]tabular.Column{col("V", tabular.Int)}, []any{1})))
	require.NoError(t, w.WriteTable("sim", "Fine", createTestBatch(t,
		[]tabular.Column{col("V", tabular.Int)}, []any{1})))

	err := s.Flush(t.Context(), path)
	assert.True(t, IsWriteFailure(err))

	h, _ := s.Handle(path)
	exists, err := h.TableExists(t.Context(), "Fine")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFlush_TableNamesGroupCaseInsensitively(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, _ := s.Writer(path)

	require.NoError(t, w.WriteTable("sim", "Report", createTestBatch(t,
		[]tabular.Column{col("A", tabular.Int)}, []any{1})))
	require.NoError(t, w.WriteTable("sim", "REPORT", createTestBatch(t,
		[]tabular.Column{col("a", tabular.Int)}, []any{2})))
	require.NoError(t, s.Flush(t.Context(), path))

	h, _ := s.Handle(path)
	names, err := h.TableNames(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{MessagesTable, "Report"}, names)

	b, err := h.GetData(t.Context(), "SIM", "report")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
}

func TestFlush_RecordsUnits(t *testing.T) {
	s := createTestStore(t)
	path := testFile(t)
	w, _ := s.Writer(path)

	require.NoError(t, w.WriteTable("sim", "Report", createTestBatch(t,
		[]tabular.Column{
			{Name: "Yield", Type: tabular.Real, Units: "kg/ha"},
			{Name: "Stage", Type: tabular.Text},
		},
		[]any{1200.0, "harvest"},
	)))
	require.NoError(t, s.Flush(t.Context(), path))

	h, _ := s.Handle(path)
	b, err := h.RunQuery(t.Context(), `SELECT "TableName", "ColumnHeading", "Units" FROM "_Units"`)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"TableName", "ColumnHeading", "Units"},
		{"Report", "Yield", "kg/ha"},
	}, cells(b))
}

func TestFlush_ConcurrentProducers(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := createTestStore(t, WithRegisterer(reg))
	path := testFile(t)
	w, _ := s.Writer(path)

	const producers, rows = 8, 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			sim := fmt.Sprintf("sim%d", p)
			for r := 0; r < rows; r++ {
				b := tabular.NewBatch(col("Day", tabular.Int), col(fmt.Sprintf("V%d", p), tabular.Real))
				assert.NoError(t, b.AddRow(r, float64(r)/2))
				assert.NoError(t, w.WriteTable(sim, "Report", b))
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, float64(producers*rows), testutil.ToFloat64(s.Metrics().QueueDepth))
	require.NoError(t, s.Flush(t.Context(), path))

	h, _ := s.Handle(path)
	b, err := h.GetData(t.Context(), AllSimulations, "Report")
	require.NoError(t, err)
	assert.Equal(t, producers*rows, b.Len())
	assert.Len(t, b.Columns, producers+2)

	names, err := h.SimulationNames(t.Context())
	require.NoError(t, err)
	assert.Len(t, names, producers)

	assert.Equal(t, float64(producers*rows), testutil.ToFloat64(s.Metrics().RowsWritten))
	assert.Zero(t, testutil.ToFloat64(s.Metrics().QueueDepth))
	n, err := testutil.GatherAndCount(reg, "simkernel_store_flush_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGroupByTable_KeepsFirstSpellingAndOrder(t *testing.T) {
	groups := groupByTable([]PendingWrite{
		{TableName: "b"},
		{TableName: "A"},
		{TableName: "B"},
		{TableName: "a"},
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].name)
	assert.Len(t, groups[0].entries, 2)
	assert.Equal(t, "A", groups[1].name)
}
