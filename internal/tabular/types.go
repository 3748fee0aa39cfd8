// Package tabular defines the column and row-batch types exchanged between
// simulation components and the result store.
//
// Column types are declared by the producer at write time. The store never
// infers a column type from a value; it only checks that each cell is
// assignment-compatible with the declared type.
package tabular

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// ColumnType is the declared type of a result column.
type ColumnType int

const (
	// Text is any value stored as a fixed-width string. The zero value of
	// ColumnType is treated as Text.
	Text ColumnType = iota
	// Int is a 32-bit or 64-bit integer.
	Int
	// Real is a 32-bit or 64-bit floating point number.
	Real
	// Date is a calendar date (time.Time).
	Date
)

// SQL declared type names. The mapping is fixed so that repeated schema
// calls are idempotent across a long multi-day write sequence.
const (
	sqlDate    = "date"
	sqlInteger = "integer"
	sqlReal    = "real"
	sqlText    = "char(50)"
)

// String returns a short lowercase name for the type.
func (t ColumnType) String() string {
	switch t {
	case Int:
		return "int"
	case Real:
		return "real"
	case Date:
		return "date"
	default:
		return "text"
	}
}

// SQLType returns the declared SQL type used when creating or altering a table.
func (t ColumnType) SQLType() string {
	switch t {
	case Int:
		return sqlInteger
	case Real:
		return sqlReal
	case Date:
		return sqlDate
	default:
		return sqlText
	}
}

// ParseSQLType maps a declared SQL type read back from a store to a ColumnType.
// Unknown declarations map to Text.
func ParseSQLType(decl string) ColumnType {
	d := strings.ToLower(strings.TrimSpace(decl))
	switch {
	case strings.Contains(d, "int"):
		return Int
	case strings.Contains(d, "real"), strings.Contains(d, "floa"), strings.Contains(d, "doub"):
		return Real
	case strings.Contains(d, "date"), strings.Contains(d, "time"):
		return Date
	default:
		return Text
	}
}

// Column is a named, typed result column. Units is optional metadata.
type Column struct {
	Name  string
	Type  ColumnType
	Units string
}

// FoldName returns the case-folded form of a name. Every case-insensitive
// match of simulation, table and column names goes through this.
func FoldName(name string) string {
	// A Caser is stateful, so one is created per call.
	return cases.Fold().String(name)
}

// Assignable reports whether a column declared as incoming may be written
// into an existing column of type existing.
func Assignable(existing, incoming ColumnType) bool {
	if existing == incoming {
		return true
	}
	return existing == Real && incoming == Int
}

// Compatible reports whether v may be stored in a column of type t.
// nil is compatible with every type.
func Compatible(t ColumnType, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case Int:
		return isInteger(v)
	case Real:
		return isInteger(v) || isFloat(v)
	case Date:
		_, ok := v.(time.Time)
		return ok
	default:
		switch v.(type) {
		case string, []byte, bool, fmt.Stringer:
			return true
		}
		return false
	}
}

// Normalize converts a compatible value into the form bound to the driver.
// Callers must check Compatible first.
func Normalize(t ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case Real:
		if f, ok := toFloat(v); ok {
			return f
		}
	case Int:
		if i, ok := toInt(v); ok {
			return i
		}
	case Date:
		if d, ok := v.(time.Time); ok {
			return d.UTC()
		}
	default:
		switch x := v.(type) {
		case string:
			return x
		case []byte:
			return string(x)
		case fmt.Stringer:
			return x.String()
		default:
			return fmt.Sprint(x)
		}
	}
	return v
}

// isInteger reports whether v is an integer that fits in int64.
func isInteger(v any) bool {
	_, ok := toInt(v)
	return ok
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
