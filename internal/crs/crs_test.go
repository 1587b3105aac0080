package crs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/choropleth/internal/model"
)

const bngPRJ = `PROJCS["British_National_Grid",GEOGCS["GCS_OSGB_1936",DATUM["D_OSGB_1936",SPHEROID["Airy_1830",6377563.396,299.3249646]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",400000.0],PARAMETER["False_Northing",-100000.0],PARAMETER["Central_Meridian",-2.0],PARAMETER["Scale_Factor",0.9996012717],PARAMETER["Latitude_Of_Origin",49.0],UNIT["Meter",1.0]]`

const bngAuthorityPRJ = `PROJCS["OSGB 1936 / British National Grid",GEOGCS["OSGB 1936",DATUM["OSGB_1936",SPHEROID["Airy 1830",6377563.396,299.3249646,AUTHORITY["EPSG","7001"]],AUTHORITY["EPSG","6277"]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4277"]],PROJECTION["Transverse_Mercator"],UNIT["metre",1],AUTHORITY["EPSG","27700"]]`

const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

func TestParseWKT(t *testing.T) {
	tests := []struct {
		name string
		wkt  string
		want model.CRS
	}{
		{"esri british national grid", bngPRJ, model.BritishNationalGrid},
		{"epsg authority", bngAuthorityPRJ, model.BritishNationalGrid},
		{"esri wgs84", wgs84PRJ, model.WGS84},
		{
			"unknown projected",
			`PROJCS["NAD83 / Conus Albers",GEOGCS["NAD83"],PROJECTION["Albers_Conic_Equal_Area"]]`,
			model.CRS{Name: "NAD83 / Conus Albers"},
		},
		{
			"unknown geographic",
			`GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983"]]`,
			model.CRS{Name: "GCS_North_American_1983", Geographic: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWKT(tt.wkt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWKT_Invalid(t *testing.T) {
	_, err := ParseWKT("not wkt")
	assert.Error(t, err)

	_, err = ParseWKT(`VERTCS["height"]`)
	assert.Error(t, err)
}

func TestParseCode(t *testing.T) {
	c, err := ParseCode("EPSG:27700")
	require.NoError(t, err)
	assert.Equal(t, model.BritishNationalGrid, c)

	c, err = ParseCode("4326")
	require.NoError(t, err)
	assert.Equal(t, model.WGS84, c)

	c, err = ParseCode("epsg:900913")
	require.NoError(t, err)
	assert.Equal(t, model.WebMercator, c)

	_, err = ParseCode("EPSG:2154")
	assert.Error(t, err)

	_, err = ParseCode("lambert")
	assert.Error(t, err)
}

func TestGridToOSGB36_OrdnanceSurveyExample(t *testing.T) {
	// Worked example from the OS guide to coordinate systems.
	lat, lon := gridToOSGB36(651409.903, 313177.270)
	assert.InDelta(t, 52.6575703, lat, 1e-6)
	assert.InDelta(t, 1.7179216, lon, 1e-6)
}

func TestOSGB36ToWGS84(t *testing.T) {
	lat, lon := osgb36ToWGS84(52.6575703, 1.7179216)
	assert.InDelta(t, 52.65798, lat, 1e-4)
	assert.InDelta(t, 1.71605, lon, 1e-4)
}

func TestWebMercatorToLonLat(t *testing.T) {
	lon, lat := webMercatorToLonLat(0, 0)
	assert.InDelta(t, 0, lon, 1e-9)
	assert.InDelta(t, 0, lat, 1e-9)

	lon, lat = webMercatorToLonLat(20037508.342789244, 0)
	assert.InDelta(t, 180, lon, 1e-6)
	assert.InDelta(t, 0, lat, 1e-9)
}

func frameIn(t *testing.T, c model.CRS, geoms ...geom.T) *model.GeoFrame {
	t.Helper()
	rows := make([]model.Row, len(geoms))
	for i := range geoms {
		rows[i] = model.Row{model.String(string(rune('A' + i)))}
	}
	f, err := model.NewFrame("id", []string{"id"}, rows)
	require.NoError(t, err)
	g, err := model.NewGeoFrame(f, geoms, c)
	require.NoError(t, err)
	return g
}

func TestReproject_BritishNationalGrid(t *testing.T) {
	// A 1km square in central Glasgow.
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		259000, 665000,
		259000, 666000,
		260000, 666000,
		260000, 665000,
		259000, 665000,
	}, []int{10})
	mp := geom.NewMultiPolygonFlat(geom.XY, poly.FlatCoords(), [][]int{{10}})

	src := frameIn(t, model.BritishNationalGrid, poly, mp)
	out, err := Reproject(src)
	require.NoError(t, err)

	assert.Equal(t, model.WGS84, out.CRS())
	assert.Equal(t, src.Len(), out.Len())

	p, ok := out.Geometry(0).(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, []int{10}, p.Ends())
	assert.Equal(t, 4326, p.SRID())
	assert.InDelta(t, -4.2542, p.FlatCoords()[0], 1e-3)
	assert.InDelta(t, 55.8575, p.FlatCoords()[1], 1e-3)

	_, ok = out.Geometry(1).(*geom.MultiPolygon)
	assert.True(t, ok)

	assert.True(t, out.Bounds().WithinLonLat())
	// Source frame is untouched.
	assert.Equal(t, 259000.0, src.Geometry(0).FlatCoords()[0])
}

func TestReproject_WGS84IsIdentity(t *testing.T) {
	src := frameIn(t, model.WGS84, geom.NewPolygonFlat(geom.XY, []float64{0, 0, 0, 1, 1, 1, 0, 0}, []int{8}))
	out, err := Reproject(src)
	require.NoError(t, err)
	assert.Same(t, src, out)
}

func TestReproject_UnknownOrUnsupported(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 0, 1, 1, 1, 0, 0}, []int{8})

	_, err := Reproject(frameIn(t, model.CRS{}, poly))
	assert.True(t, model.IsKind(err, model.ProjectionError))

	_, err = Reproject(frameIn(t, model.CRS{EPSG: 2154, Name: "RGF93 / Lambert-93"}, poly))
	assert.True(t, model.IsKind(err, model.ProjectionError))
}
