package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/simkernel/internal/runner"
	"github.com/roach88/simkernel/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

func evaluateAssertion(ctx context.Context, h *store.Handle, res runner.Result, a Assertion) error {
	switch a.Type {
	case AssertTableExists:
		return assertTableExists(ctx, h, a)
	case AssertRowCount:
		return assertRowCount(ctx, h, a)
	case AssertMessageContains:
		return assertMessageContains(ctx, h, a)
	case AssertSimulations:
		return assertSimulations(ctx, h, a)
	case AssertCompleted:
		return assertCompleted(res, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertTableExists(ctx context.Context, h *store.Handle, a Assertion) error {
	ok, err := h.TableExists(ctx, a.Table)
	if err != nil {
		return fmt.Errorf("table_exists %s: %w", a.Table, err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertTableExists,
			Expected: fmt.Sprintf("table %s", a.Table),
			Actual:   "table not found",
		}
	}
	return nil
}

// assertRowCount counts the table's rows for a.Simulation. An empty
// simulation counts every row.
func assertRowCount(ctx context.Context, h *store.Handle, a Assertion) error {
	sim := a.Simulation
	if sim == "" {
		sim = store.AllSimulations
	}
	b, err := h.GetData(ctx, sim, a.Table)
	if err != nil {
		return fmt.Errorf("row_count %s: %w", a.Table, err)
	}
	actual := 0
	if b != nil {
		actual = b.Len()
	}
	if actual != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s for %s", a.Count, a.Table, sim),
			Actual:   fmt.Sprintf("%d rows", actual),
		}
	}
	return nil
}

func assertMessageContains(ctx context.Context, h *store.Handle, a Assertion) error {
	b, err := h.GetData(ctx, a.Simulation, store.MessagesTable)
	if err != nil {
		return fmt.Errorf("message_contains %s: %w", a.Simulation, err)
	}
	var messages []string
	if b != nil {
		for _, v := range b.Column("Message") {
			msg := store.FormatCell(v)
			if strings.Contains(msg, a.Text) {
				return nil
			}
			messages = append(messages, msg)
		}
	}
	return &AssertionError{
		Type:     AssertMessageContains,
		Expected: fmt.Sprintf("message from %s containing %q", a.Simulation, a.Text),
		Actual:   fmt.Sprintf("messages %q", messages),
	}
}

func assertSimulations(ctx context.Context, h *store.Handle, a Assertion) error {
	names, err := h.SimulationNames(ctx)
	if err != nil {
		return fmt.Errorf("simulations: %w", err)
	}
	if !slices.Equal(names, a.Names) {
		return &AssertionError{
			Type:     AssertSimulations,
			Expected: fmt.Sprintf("%v", a.Names),
			Actual:   fmt.Sprintf("%v", names),
		}
	}
	return nil
}

func assertCompleted(res runner.Result, a Assertion) error {
	if !slices.Equal(res.Completed, a.Names) {
		return &AssertionError{
			Type:     AssertCompleted,
			Expected: fmt.Sprintf("%v", a.Names),
			Actual:   fmt.Sprintf("%v", res.Completed),
		}
	}
	return nil
}
