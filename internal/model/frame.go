package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Table is the read-only view shared by plain and spatial tables.
type Table interface {
	Columns() []string
	KeyColumn() string
	ColumnIndex(name string) int
	Len() int
	Key(i int) string
	Row(i int) Row
}

// Frame is a plain tabular dataset keyed by one of its columns. Measurement tables are
// Frames, and so is the result of joining with a non-spatial left operand.
type Frame struct {
	key     string
	keyIdx  int
	columns []string
	index   map[string]int
	rows    []Row
}

// NewFrame builds a Frame. The key column must be one of columns and every row must be
// exactly as wide as columns. Duplicate keys are allowed; they are a join-time concern.
func NewFrame(key string, columns []string, rows []Row) (*Frame, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, eris.Errorf("model: duplicate column %q", c)
		}
		index[c] = i
	}

	keyIdx, ok := index[key]
	if !ok {
		return nil, eris.Errorf("model: key column %q not in columns %v", key, columns)
	}

	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, eris.Errorf("model: row %d has %d values, want %d", i, len(r), len(columns))
		}
	}

	return &Frame{
		key:     key,
		keyIdx:  keyIdx,
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    rows,
	}, nil
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }

// KeyColumn returns the join key column name.
func (f *Frame) KeyColumn() string { return f.key }

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	return -1
}

// LookupColumn resolves a column name case-insensitively, preferring an exact match.
func (f *Frame) LookupColumn(name string) (string, bool) {
	if _, ok := f.index[name]; ok {
		return name, true
	}
	for _, c := range f.columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.rows) }

// Key returns the key of row i as text.
func (f *Frame) Key(i int) string { return f.rows[i][f.keyIdx].Text() }

// Row returns a copy of row i.
func (f *Frame) Row(i int) Row { return append(Row(nil), f.rows[i]...) }

// Value returns the cell at row i in column name. Unknown columns read as null.
func (f *Frame) Value(i int, name string) Value {
	idx, ok := f.index[name]
	if !ok {
		return Null()
	}
	return f.rows[i][idx]
}

// Column returns every value of a column in row order.
func (f *Frame) Column(name string) ([]Value, error) {
	idx, ok := f.index[name]
	if !ok {
		return nil, eris.Errorf("model: unknown column %q", name)
	}
	out := make([]Value, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[idx]
	}
	return out, nil
}

// subset returns a Frame over the given rows, sharing the underlying row storage.
func (f *Frame) subset(rows []int) *Frame {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = f.rows[r]
	}
	return &Frame{
		key:     f.key,
		keyIdx:  f.keyIdx,
		columns: f.columns,
		index:   f.index,
		rows:    out,
	}
}
