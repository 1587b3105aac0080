// Package modeltest builds small region and measurement tables for tests.
package modeltest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/choropleth/internal/model"
)

// IDColumn is the identifier column of tables built by Regions.
const IDColumn = "DataZone"

// Square returns an axis-aligned square polygon with its lower-left corner at x, y.
func Square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x, y,
		x, y + size,
		x + size, y + size,
		x + size, y,
		x, y,
	}, []int{10})
}

// Regions returns one square region per id, laid out west to east, with a Name column.
// Geographic frames sit around Glasgow in degrees; projected ones in British National
// Grid metres.
func Regions(t testing.TB, ref model.CRS, ids ...string) *model.GeoFrame {
	t.Helper()

	x, y, size := 259000.0, 665000.0, 500.0
	if ref.Geographic {
		x, y, size = -4.30, 55.85, 0.01
	}

	rows := make([]model.Row, len(ids))
	geoms := make([]geom.T, len(ids))
	for i, id := range ids {
		rows[i] = model.Row{model.String(id), model.String(fmt.Sprintf("Zone %s", id))}
		geoms[i] = Square(x+float64(i)*size, y, size).SetSRID(ref.EPSG)
	}

	frame, err := model.NewFrame(IDColumn, []string{IDColumn, "Name"}, rows)
	require.NoError(t, err)
	g, err := model.NewGeoFrame(frame, geoms, ref)
	require.NoError(t, err)
	return g
}

// Measures builds a measurement table from text cells; the first header is the key.
func Measures(t testing.TB, header []string, records ...[]string) *model.Frame {
	t.Helper()

	rows := make([]model.Row, len(records))
	for i, rec := range records {
		row := make(model.Row, len(rec))
		for j, cell := range rec {
			if j == 0 {
				row[j] = model.String(cell)
				continue
			}
			row[j] = model.ParseValue(cell)
		}
		rows[i] = row
	}

	frame, err := model.NewFrame(header[0], header, rows)
	require.NoError(t, err)
	return frame
}

// CloseShapefile closes w and moves the attribute table, which go-shp writes as
// "<base>dbf", to "<base>.dbf" next to shpPath.
func CloseShapefile(t *testing.T, w *shp.Writer, shpPath string) {
	t.Helper()
	w.Close()

	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	_, err := os.Stat(base + ".dbf")
	require.NoError(t, err, "attribute table missing for %s", shpPath)
}
