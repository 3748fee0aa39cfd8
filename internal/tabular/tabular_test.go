package tabular

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var simID = Column{Name: "SimulationID", Type: Int}

func TestColumnType_SQLTypeMapping(t *testing.T) {
	assert.Equal(t, "date", Date.SQLType())
	assert.Equal(t, "integer", Int.SQLType())
	assert.Equal(t, "real", Real.SQLType())
	assert.Equal(t, "char(50)", Text.SQLType())
	assert.Equal(t, "char(50)", ColumnType(99).SQLType(), "unknown types fall back to text")
}

func TestParseSQLType_RoundTrip(t *testing.T) {
	for _, ct := range []ColumnType{Date, Int, Real, Text} {
		assert.Equal(t, ct, ParseSQLType(ct.SQLType()), ct.String())
	}
	assert.Equal(t, Int, ParseSQLType("INTEGER"))
	assert.Equal(t, Real, ParseSQLType("DOUBLE"))
	assert.Equal(t, Text, ParseSQLType(""))
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		name string
		typ  ColumnType
		v    any
		want bool
	}{
		{"nil into int", Int, nil, true},
		{"int32 into int", Int, int32(3), true},
		{"float into int", Int, 1.5, false},
		{"uint into int", Int, uint(7), true},
		{"uint64 into int", Int, uint64(math.MaxInt64), true},
		{"uint64 overflow into int", Int, uint64(math.MaxInt64) + 1, false},
		{"uint into real", Real, uint(2), true},
		{"int into real", Real, 4, true},
		{"float32 into real", Real, float32(1.5), true},
		{"string into real", Real, "1.5", false},
		{"time into date", Date, time.Now(), true},
		{"string into date", Date, "2000-01-01", false},
		{"string into text", Text, "abc", true},
		{"bool into text", Text, true, true},
		{"int into text", Text, 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compatible(tt.typ, tt.v))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float64(4), Normalize(Real, 4))
	assert.Equal(t, int64(4), Normalize(Int, int16(4)))
	assert.Equal(t, int64(9), Normalize(Int, uint64(9)))
	assert.Equal(t, float64(9), Normalize(Real, uint(9)))
	assert.Equal(t, "true", Normalize(Text, true))
	assert.Nil(t, Normalize(Int, nil))

	loc := time.FixedZone("x", 3600)
	d := Normalize(Date, time.Date(2000, 1, 2, 0, 0, 0, 0, loc)).(time.Time)
	assert.Equal(t, time.UTC, d.Location())
}

func TestBatch_AddRowArity(t *testing.T) {
	b := NewBatch(Column{Name: "A", Type: Int}, Column{Name: "B", Type: Real})
	require.NoError(t, b.AddRow(1, 2.0))
	assert.Error(t, b.AddRow(1))
	assert.Equal(t, 1, b.Len())
}

func TestBatch_IndexCaseInsensitive(t *testing.T) {
	b := NewBatch(Column{Name: "Yield", Type: Real})
	assert.Equal(t, 0, b.Index("yield"))
	assert.Equal(t, 0, b.Index("YIELD"))
	assert.Equal(t, -1, b.Index("rain"))
}

func TestBatch_CloneIsIndependent(t *testing.T) {
	b := NewBatch(Column{Name: "A", Type: Int})
	require.NoError(t, b.AddRow(1))

	c := b.Clone()
	require.NoError(t, b.AddRow(2))
	b.Rows[0][0] = 9

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Rows[0][0])
}

func TestBatch_DropColumn(t *testing.T) {
	b := NewBatch(Column{Name: "A", Type: Int}, Column{Name: "B", Type: Text}, Column{Name: "C", Type: Int})
	require.NoError(t, b.AddRow(1, "x", 3))

	b.DropColumn("b")

	require.Len(t, b.Columns, 2)
	assert.Equal(t, "C", b.Columns[1].Name)
	assert.Equal(t, []any{1, 3}, b.Rows[0])

	b.DropColumn("missing")
	assert.Len(t, b.Columns, 2)
}

func TestBatch_Validate(t *testing.T) {
	b := NewBatch(Column{Name: "A", Type: Int}, Column{Name: "D", Type: Date})
	require.NoError(t, b.AddRow(1, time.Now()))
	require.NoError(t, b.Validate())

	require.NoError(t, b.AddRow("oops", nil))
	err := b.Validate()
	var cellErr *CellError
	require.ErrorAs(t, err, &cellErr)
	assert.Equal(t, "A", cellErr.Column)
	assert.Equal(t, 1, cellErr.Row)
}

func TestUnionColumns_KeepsFirstAndOrder(t *testing.T) {
	cols, err := UnionColumns(simID,
		[]Column{{Name: "yield", Type: Real}},
		[]Column{{Name: "rain", Type: Real}, {Name: "Yield", Type: Real}},
	)
	require.NoError(t, err)

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"SimulationID", "yield", "rain"}, names)
}

func TestUnionColumns_WidensIntToReal(t *testing.T) {
	cols, err := UnionColumns(simID,
		[]Column{{Name: "x", Type: Int}},
		[]Column{{Name: "x", Type: Real}},
	)
	require.NoError(t, err)
	assert.Equal(t, Real, cols[1].Type)
}

func TestUnionColumns_Conflict(t *testing.T) {
	_, err := UnionColumns(simID,
		[]Column{{Name: "x", Type: Date}},
		[]Column{{Name: "X", Type: Real}},
	)
	var conflict *TypeConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "x", conflict.Column)
}

func TestUnionColumns_CarriesUnits(t *testing.T) {
	cols, err := UnionColumns(simID,
		[]Column{{Name: "rain", Type: Real}},
		[]Column{{Name: "rain", Type: Real, Units: "mm"}},
	)
	require.NoError(t, err)
	assert.Equal(t, "mm", cols[1].Units)
}

func TestMissing(t *testing.T) {
	have := []Column{{Name: "A"}, {Name: "b"}}
	want := []Column{{Name: "a"}, {Name: "B"}, {Name: "C"}}
	missing := Missing(want, have)
	require.Len(t, missing, 1)
	assert.Equal(t, "C", missing[0].Name)
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, FoldName("Sim1"), FoldName("sim1"))
	assert.Equal(t, FoldName("ÄPFEL"), FoldName("äpfel"))
}
