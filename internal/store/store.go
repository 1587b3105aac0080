// Package store exports a joined map table, geometry included, to SQLite or PostGIS.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/choropleth/internal/config"
	"github.com/sells-group/choropleth/internal/model"
)

// Exporter writes a map table, replacing any existing table of the same name.
type Exporter interface {
	Export(ctx context.Context, m *model.GeoFrame, table string) (int64, error)
	Close() error
}

// New opens the exporter named by cfg.Driver.
func New(ctx context.Context, cfg config.ExportConfig) (Exporter, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostGIS(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown export driver %q", cfg.Driver)
	}
}

// column is a frame column with its storage affinity.
type column struct {
	name    string
	numeric bool
}

// columnsOf types each column of m: REAL when every present value is a number, TEXT
// otherwise. All-null columns are TEXT.
func columnsOf(m *model.GeoFrame) []column {
	names := m.Columns()
	cols := make([]column, len(names))
	for j, name := range names {
		numeric, seen := true, false
		for i := 0; i < m.Len(); i++ {
			v := m.Value(i, name)
			if v.IsNull() {
				continue
			}
			seen = true
			if _, ok := v.Float(); !ok {
				numeric = false
				break
			}
		}
		cols[j] = column{name: name, numeric: numeric && seen && name != m.KeyColumn()}
	}
	return cols
}

// cell converts v for a column of the given affinity.
func cell(v model.Value, numeric bool) any {
	if v.IsNull() {
		return nil
	}
	if numeric {
		f, _ := v.Float()
		return f
	}
	return v.Text()
}

func checkExport(m *model.GeoFrame, table string) error {
	if m == nil {
		return model.Errorf(model.OrderViolation, "store: export needs a map table")
	}
	if strings.TrimSpace(table) == "" {
		return eris.New("store: export table name is required")
	}
	for _, c := range m.Columns() {
		if strings.EqualFold(c, geometryColumn) || strings.EqualFold(c, sridColumn) {
			return eris.Errorf("store: column %q collides with the geometry columns", c)
		}
	}
	return nil
}

const (
	geometryColumn = "geom"
	sridColumn     = "srid"
)

// withSRID returns a copy of g tagged with srid, leaving the frame's geometry untouched.
func withSRID(g geom.T, srid int) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.Clone().SetSRID(srid), nil
	case *geom.MultiPolygon:
		return t.Clone().SetSRID(srid), nil
	default:
		return nil, eris.Errorf("store: unsupported geometry %T", g)
	}
}
