package region

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/choropleth/internal/model/modeltest"
)

const testPRJ = `PROJCS["British_National_Grid",GEOGCS["GCS_OSGB_1936",DATUM["D_OSGB_1936",SPHEROID["Airy_1830",6377563.396,299.3249646]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],UNIT["Meter",1.0]]`

type testRecord struct {
	shape shp.Shape
	attrs []any
}

// clockwise square, i.e. an outer ring in shapefile orientation.
func outerRing(x, y, size float64) []shp.Point {
	return []shp.Point{
		{X: x, Y: y},
		{X: x, Y: y + size},
		{X: x + size, Y: y + size},
		{X: x + size, Y: y},
		{X: x, Y: y},
	}
}

// counter-clockwise square, i.e. a hole.
func holeRing(x, y, size float64) []shp.Point {
	return []shp.Point{
		{X: x, Y: y},
		{X: x + size, Y: y},
		{X: x + size, Y: y + size},
		{X: x, Y: y + size},
		{X: x, Y: y},
	}
}

func polygon(rings ...[]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(rings))
	return &p
}

func dataZoneFields() []shp.Field {
	return []shp.Field{
		shp.StringField("DataZone", 12),
		shp.StringField("Name", 30),
		shp.StringField("CouncilAre", 30),
		shp.NumberField("StdAreaKm2", 8),
	}
}

// writeShapefile writes base.shp/.shx/.dbf (and .prj when prj is set) into dir.
func writeShapefile(t *testing.T, dir, base string, fields []shp.Field, records []testRecord, prj string) string {
	t.Helper()
	path := filepath.Join(dir, base+".shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields(fields))
	for i, rec := range records {
		w.Write(rec.shape)
		for j, v := range rec.attrs {
			require.NoError(t, w.WriteAttribute(i, j, v))
		}
	}
	modeltest.CloseShapefile(t, w, path)

	if prj != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, base+".prj"), []byte(prj), 0o644))
	}
	return path
}

// glasgowRecords returns three data zones, the second with a hole and the third split in two.
func glasgowRecords() []testRecord {
	return []testRecord{
		{polygon(outerRing(259000, 665000, 500)), []any{"S01009758", "Carmyle", "Glasgow City", 1}},
		{polygon(outerRing(259500, 665000, 500), holeRing(259600, 665100, 100)), []any{"S01009759", "Tollcross", "Glasgow City", 2}},
		{polygon(outerRing(260000, 665000, 200), outerRing(260400, 665000, 200)), []any{"S01010001", "Rutherglen", "South Lanarkshire", 3}},
	}
}

func zipDir(t *testing.T, src, dest string) {
	t.Helper()
	f, err := os.Create(dest)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	entries, err := os.ReadDir(src)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		require.NoError(t, err)
		w, err := zw.Create("SG_DataZone_Bdry_2011/" + e.Name())
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
