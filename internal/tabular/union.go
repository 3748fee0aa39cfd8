package tabular

import "fmt"

// TypeConflict reports a column declared with two incompatible types.
type TypeConflict struct {
	Column   string
	Existing ColumnType
	Incoming ColumnType
}

func (e *TypeConflict) Error() string {
	return fmt.Sprintf("column %q declared as %s, cannot take %s", e.Column, e.Existing, e.Incoming)
}

// UnionColumns merges column lists into one ordered list. first is always
// at position 0; remaining names are appended in first-seen order and
// matched case-insensitively. The first declaration of a name keeps its
// spelling. Redeclaring a name with a type that is not Assignable to the
// earlier declaration returns a *TypeConflict. An Int column later declared
// as Real is widened to Real.
func UnionColumns(first Column, sets ...[]Column) ([]Column, error) {
	out := []Column{first}
	pos := map[string]int{FoldName(first.Name): 0}

	for _, cols := range sets {
		for _, c := range cols {
			key := FoldName(c.Name)
			i, ok := pos[key]
			if !ok {
				pos[key] = len(out)
				out = append(out, c)
				continue
			}
			have := out[i]
			switch {
			case Assignable(have.Type, c.Type):
			case Assignable(c.Type, have.Type) && i != 0:
				out[i].Type = c.Type
			default:
				return nil, &TypeConflict{Column: have.Name, Existing: have.Type, Incoming: c.Type}
			}
			if out[i].Units == "" {
				out[i].Units = c.Units
			}
		}
	}
	return out, nil
}

// Missing returns the columns of want whose names are absent from have,
// in want's order.
func Missing(want []Column, have []Column) []Column {
	var out []Column
	for _, c := range want {
		if indexOf(have, c.Name) < 0 {
			out = append(out, c)
		}
	}
	return out
}
