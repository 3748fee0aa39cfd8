package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/simkernel/internal/tabular"
)

// createTestStore creates a store context closed at test cleanup.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s := New(opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

// testFile returns a result file path that does not exist yet.
func testFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "results.db")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestHandle returns an opened read-write handle on a fresh file.
func createTestHandle(t *testing.T, s *Store) *Handle {
	t.Helper()
	h, err := s.Handle(testFile(t))
	if err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}
	if err := h.Open(t.Context(), true); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return h
}

// createTestBatch builds a batch, failing the test on arity errors.
func createTestBatch(t *testing.T, cols []tabular.Column, rows ...[]any) *tabular.Batch {
	t.Helper()
	b := tabular.NewBatch(cols...)
	for _, r := range rows {
		if err := b.AddRow(r...); err != nil {
			t.Fatalf("AddRow() failed: %v", err)
		}
	}
	return b
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func col(name string, typ tabular.ColumnType) tabular.Column {
	return tabular.Column{Name: name, Type: typ}
}
