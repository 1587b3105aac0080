// Package measure loads per-region measurement tables (e.g. deprivation ranks) from CSV
// or XLSX files and aligns their key column with the boundary identifier.
package measure

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/model"
)

// Options configures an attribute load.
type Options struct {
	Path string
	// KeyColumn is the identifier column as named in the file, e.g. "Data_Zone".
	KeyColumn string
	// RenameTo is the boundary identifier name the key column is renamed to, e.g. "DataZone".
	RenameTo string
	// Columns limits the measurement columns kept. Empty keeps every column.
	Columns []string
	// Sheet selects an XLSX worksheet by name; SheetIndex is used when empty.
	Sheet      string
	SheetIndex int
	// Delimiter overrides the CSV field separator.
	Delimiter rune
	// SkipRows drops leading rows before the header (title rows in published workbooks).
	SkipRows int
}

// Load reads a measurement table. Unreadable files, missing key columns and malformed
// rows are reported as model.LoadError.
func Load(ctx context.Context, opts Options) (*model.Frame, error) {
	if opts.Path == "" {
		return nil, model.Errorf(model.LoadError, "measure: no attribute path configured")
	}
	if opts.KeyColumn == "" {
		return nil, model.Errorf(model.LoadError, "measure: no key column configured")
	}

	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(opts.Path)) {
	case ".xlsx":
		records, err = readXLSX(opts.Path, opts.Sheet, opts.SheetIndex)
	case ".csv", ".txt", ".tsv":
		delim := opts.Delimiter
		if delim == 0 && strings.EqualFold(filepath.Ext(opts.Path), ".tsv") {
			delim = '\t'
		}
		records, err = readCSV(ctx, opts.Path, delim)
	default:
		err = eris.Errorf("measure: unsupported file type %q", filepath.Ext(opts.Path))
	}
	if err != nil {
		return nil, model.NewError(model.LoadError, err)
	}

	if opts.SkipRows > 0 {
		if opts.SkipRows >= len(records) {
			records = nil
		} else {
			records = records[opts.SkipRows:]
		}
	}

	frame, err := buildFrame(records, opts)
	if err != nil {
		return nil, model.NewError(model.LoadError, err)
	}

	zap.L().Info("measure: attributes loaded",
		zap.String("path", opts.Path),
		zap.Int("rows", frame.Len()),
		zap.Strings("columns", frame.Columns()),
	)
	return frame, nil
}

// buildFrame turns header + records into a Frame keyed by the renamed key column.
func buildFrame(records [][]string, opts Options) (*model.Frame, error) {
	if len(records) == 0 {
		return nil, eris.New("measure: file has no header row")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	keyIdx := -1
	for i, h := range header {
		if strings.EqualFold(h, opts.KeyColumn) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, eris.Errorf("measure: key column %q not in header %v", opts.KeyColumn, header)
	}

	keyName := opts.RenameTo
	if keyName == "" {
		keyName = header[keyIdx]
	}

	keep, err := selectColumns(header, keyIdx, opts.Columns)
	if err != nil {
		return nil, err
	}

	columns := make([]string, len(keep))
	for i, idx := range keep {
		columns[i] = header[idx]
	}
	columns[0] = keyName

	rows := make([]model.Row, 0, len(records)-1)
	var blankKeys int
	for n, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		if len(rec) != len(header) {
			return nil, eris.Errorf("measure: row %d has %d fields, header has %d", n+2, len(rec), len(header))
		}

		key := strings.TrimSpace(rec[keyIdx])
		if key == "" {
			blankKeys++
			continue
		}

		row := make(model.Row, len(keep))
		row[0] = model.String(key)
		for i, idx := range keep[1:] {
			row[i+1] = model.ParseValue(rec[idx])
		}
		rows = append(rows, row)
	}

	if blankKeys > 0 {
		zap.L().Warn("measure: skipped rows without a key",
			zap.String("path", opts.Path),
			zap.Int("skipped", blankKeys),
		)
	}

	return model.NewFrame(keyName, columns, rows)
}

// selectColumns returns the positions to keep, key first.
func selectColumns(header []string, keyIdx int, want []string) ([]int, error) {
	keep := []int{keyIdx}
	if len(want) == 0 {
		for i := range header {
			if i != keyIdx {
				keep = append(keep, i)
			}
		}
		return keep, nil
	}

	for _, w := range want {
		idx := -1
		for i, h := range header {
			if strings.EqualFold(h, w) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, eris.Errorf("measure: column %q not in header %v", w, header)
		}
		if idx != keyIdx {
			keep = append(keep, idx)
		}
	}
	return keep, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
