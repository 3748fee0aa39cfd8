package tabular

import (
	"fmt"
)

// Batch is an ordered set of typed columns and the rows written against them.
// Each row holds exactly one cell per column; nil cells are stored as NULL.
type Batch struct {
	Columns []Column
	Rows    [][]any
}

// NewBatch creates an empty batch with the given columns.
func NewBatch(cols ...Column) *Batch {
	c := make([]Column, len(cols))
	copy(c, cols)
	return &Batch{Columns: c}
}

// AddRow appends a row. The number of values must equal the number of columns.
func (b *Batch) AddRow(values ...any) error {
	if len(values) != len(b.Columns) {
		return fmt.Errorf("add row: got %d values for %d columns", len(values), len(b.Columns))
	}
	row := make([]any, len(values))
	copy(row, values)
	b.Rows = append(b.Rows, row)
	return nil
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Index returns the position of the named column (case-insensitive), or -1.
func (b *Batch) Index(name string) int {
	return indexOf(b.Columns, name)
}

// Value returns the cell at row for the named column.
func (b *Batch) Value(row int, name string) (any, bool) {
	i := b.Index(name)
	if i < 0 || row < 0 || row >= len(b.Rows) {
		return nil, false
	}
	return b.Rows[row][i], true
}

// Column returns every cell of the named column, or nil when the column is absent.
func (b *Batch) Column(name string) []any {
	i := b.Index(name)
	if i < 0 {
		return nil
	}
	out := make([]any, len(b.Rows))
	for r, row := range b.Rows {
		out[r] = row[i]
	}
	return out
}

// Clone returns a deep copy of the column list and row slices. Cell values
// themselves are shared.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	out := NewBatch(b.Columns...)
	out.Rows = make([][]any, len(b.Rows))
	for i, row := range b.Rows {
		r := make([]any, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// DropColumn removes the named column and its cells. It is a no-op when
// the column is absent.
func (b *Batch) DropColumn(name string) {
	i := b.Index(name)
	if i < 0 {
		return
	}
	b.Columns = append(b.Columns[:i:i], b.Columns[i+1:]...)
	for r, row := range b.Rows {
		b.Rows[r] = append(row[:i:i], row[i+1:]...)
	}
}

// CellError reports a cell whose value is not compatible with its column.
type CellError struct {
	Column string
	Type   ColumnType
	Row    int
	Value  any
}

func (e *CellError) Error() string {
	return fmt.Sprintf("column %q row %d: %T value not assignable to %s", e.Column, e.Row, e.Value, e.Type)
}

// Validate checks every cell against its declared column type and returns
// the first incompatible cell as a *CellError.
func (b *Batch) Validate() error {
	for r, row := range b.Rows {
		if len(row) != len(b.Columns) {
			return fmt.Errorf("row %d: got %d values for %d columns", r, len(row), len(b.Columns))
		}
		for c, v := range row {
			col := b.Columns[c]
			if !Compatible(col.Type, v) {
				return &CellError{Column: col.Name, Type: col.Type, Row: r, Value: v}
			}
		}
	}
	return nil
}

func indexOf(cols []Column, name string) int {
	key := FoldName(name)
	for i, c := range cols {
		if FoldName(c.Name) == key {
			return i
		}
	}
	return -1
}
