package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/simkernel/internal/store"
)

// RunWithGolden executes a scenario in a temporary result file and compares
// table, rendered as CSV, against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the scenario cannot be run or the table cannot be read.
// Test failure (via goldie) occurs if the table doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, table string) (*Result, error) {
	t.Helper()

	file := filepath.Join(t.TempDir(), scenario.Name+".db")
	result, err := Run(t.Context(), scenario, file)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, file, table); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares table in an existing result file against the
// golden file named name.
func AssertGolden(t *testing.T, name, file, table string) error {
	t.Helper()

	data, err := RenderTable(t.Context(), file, table)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// RenderTable reads every row of table from a result file and renders it as
// CSV with a header row.
func RenderTable(ctx context.Context, file, table string) ([]byte, error) {
	st := store.New(store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer st.Close()

	h, err := st.Handle(file)
	if err != nil {
		return nil, err
	}
	b, err := h.GetData(ctx, store.AllSimulations, table)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("table %s not found in %s", table, file)
	}

	var buf bytes.Buffer
	if err := store.WriteCSV(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
