package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/roach88/simkernel/internal/tabular"
)

// ExportCSV writes every table of the file, registry included, to dir as
// <base>.<table>.csv, where base is the file name without extension. With
// compress set each file is lz4-framed and gets a .lz4 suffix. A header row
// is written even for empty tables. Returns the written paths.
func (h *Handle) ExportCSV(ctx context.Context, dir string, compress bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	tables, err := h.allTables(ctx)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(h.path), filepath.Ext(h.path))
	var written []string
	for _, table := range tables {
		b, err := h.RunQuery(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", quote(table)))
		if err != nil {
			return written, fmt.Errorf("export %s: %w", table, err)
		}

		path := filepath.Join(dir, fmt.Sprintf("%s.%s.csv", base, table))
		if compress {
			path += ".lz4"
		}
		if err := writeCSVFile(path, b, compress); err != nil {
			return written, fmt.Errorf("export %s: %w", table, err)
		}
		written = append(written, path)
	}

	h.logger.Debug("tables exported", "dir", dir, "files", len(written))
	return written, nil
}

func writeCSVFile(path string, b *tabular.Batch, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if !compress {
		return WriteCSV(f, b)
	}
	zw := lz4.NewWriter(f)
	if err := WriteCSV(zw, b); err != nil {
		return err
	}
	return zw.Close()
}

// WriteCSV writes b as CSV with a header row.
func WriteCSV(w io.Writer, b *tabular.Batch) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(b.Columns))
	for _, row := range b.Rows {
		for i, v := range row {
			record[i] = FormatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders one value for text output. Midnight dates print as
// 2006-01-02, other times as RFC 3339, floats in shortest form, NULL as "".
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		x = x.UTC()
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
