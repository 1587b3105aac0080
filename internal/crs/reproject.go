package crs

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/model"
)

// ToLonLat converts one coordinate pair to WGS 84 longitude/latitude in degrees.
type ToLonLat func(x, y float64) (lon, lat float64)

// Transformer returns the conversion from src to WGS 84.
func Transformer(src model.CRS) (ToLonLat, error) {
	switch src.EPSG {
	case model.WGS84.EPSG:
		return func(x, y float64) (float64, float64) { return x, y }, nil
	case model.OSGB36.EPSG:
		return func(x, y float64) (float64, float64) {
			lat, lon := osgb36ToWGS84(y, x)
			return lon, lat
		}, nil
	case model.BritishNationalGrid.EPSG:
		return func(x, y float64) (float64, float64) {
			lat, lon := gridToOSGB36(x, y)
			lat, lon = osgb36ToWGS84(lat, lon)
			return lon, lat
		}, nil
	case model.WebMercator.EPSG:
		return webMercatorToLonLat, nil
	}
	return nil, model.Errorf(model.ProjectionError, "no transformation from %s to %s", src, model.WGS84)
}

// Reproject returns a copy of m with every geometry in WGS 84. Frames already in WGS 84
// are returned unchanged.
func Reproject(m *model.GeoFrame) (*model.GeoFrame, error) {
	src := m.CRS()
	if src.EPSG == model.WGS84.EPSG {
		return m, nil
	}
	if !src.Known() {
		return nil, model.Errorf(model.ProjectionError, "source CRS unknown; set boundary.crs")
	}

	fn, err := Transformer(src)
	if err != nil {
		return nil, err
	}

	geoms := make([]geom.T, m.Len())
	for i := 0; i < m.Len(); i++ {
		g, err := transform(m.Geometry(i), fn)
		if err != nil {
			return nil, model.NewError(model.ProjectionError, eris.Wrapf(err, "crs: region %s", m.Key(i)))
		}
		geoms[i] = g
	}

	zap.L().Debug("crs: reprojected boundaries",
		zap.String("from", src.String()),
		zap.String("to", model.WGS84.String()),
		zap.Int("regions", len(geoms)),
	)

	return m.WithGeometries(geoms, model.WGS84)
}

// transform applies fn to every coordinate of a polygonal geometry, keeping its ring
// structure and any Z/M ordinates.
func transform(g geom.T, fn ToLonLat) (geom.T, error) {
	flat := g.FlatCoords()
	stride := g.Stride()
	out := make([]float64, len(flat))
	copy(out, flat)
	for i := 0; i+1 < len(out); i += stride {
		out[i], out[i+1] = fn(out[i], out[i+1])
		if math.IsNaN(out[i]) || math.IsNaN(out[i+1]) {
			return nil, eris.Errorf("crs: coordinate %d did not converge", i/stride)
		}
	}

	switch t := g.(type) {
	case *geom.Polygon:
		return geom.NewPolygonFlat(t.Layout(), out, t.Ends()).SetSRID(model.WGS84.EPSG), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(t.Layout(), out, t.Endss()).SetSRID(model.WGS84.EPSG), nil
	}
	return nil, eris.Errorf("crs: unsupported geometry %T", g)
}

const webMercatorRadius = 6378137.0

func webMercatorToLonLat(x, y float64) (float64, float64) {
	lon := x / webMercatorRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/webMercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

type ellipsoid struct {
	a, b float64
}

func (e ellipsoid) e2() float64 { return 1 - (e.b*e.b)/(e.a*e.a) }

var (
	airy1830 = ellipsoid{a: 6377563.396, b: 6356256.909}
	grs80    = ellipsoid{a: 6378137.000, b: 6356752.3141}
)

// National Grid true origin and scale factor.
const (
	ngF0   = 0.9996012717
	ngLat0 = 49 * math.Pi / 180
	ngLon0 = -2 * math.Pi / 180
	ngN0   = -100000.0
	ngE0   = 400000.0
)

// gridToOSGB36 inverts the National Grid transverse Mercator projection, returning
// OSGB36 latitude/longitude in degrees.
func gridToOSGB36(easting, northing float64) (float64, float64) {
	a, b := airy1830.a, airy1830.b
	e2 := airy1830.e2()
	n := (a - b) / (a + b)
	n2, n3 := n*n, n*n*n

	lat := ngLat0
	m := 0.0
	for i := 0; i < 100; i++ {
		lat = (northing-ngN0-m)/(a*ngF0) + lat
		dl, sl := lat-ngLat0, lat+ngLat0
		ma := (1 + n + 5.0/4*n2 + 5.0/4*n3) * dl
		mb := (3*n + 3*n2 + 21.0/8*n3) * math.Sin(dl) * math.Cos(sl)
		mc := (15.0/8*n2 + 15.0/8*n3) * math.Sin(2*dl) * math.Cos(2*sl)
		md := 35.0 / 24 * n3 * math.Sin(3*dl) * math.Cos(3*sl)
		m = b * ngF0 * (ma - mb + mc - md)
		if math.Abs(northing-ngN0-m) < 0.00001 {
			break
		}
	}

	sinLat := math.Sin(lat)
	nu := a * ngF0 / math.Sqrt(1-e2*sinLat*sinLat)
	rho := a * ngF0 * (1 - e2) / math.Pow(1-e2*sinLat*sinLat, 1.5)
	eta2 := nu/rho - 1

	tanLat := math.Tan(lat)
	tan2 := tanLat * tanLat
	tan4 := tan2 * tan2
	tan6 := tan4 * tan2
	secLat := 1 / math.Cos(lat)
	nu3 := nu * nu * nu
	nu5 := nu3 * nu * nu
	nu7 := nu5 * nu * nu

	vii := tanLat / (2 * rho * nu)
	viii := tanLat / (24 * rho * nu3) * (5 + 3*tan2 + eta2 - 9*tan2*eta2)
	ix := tanLat / (720 * rho * nu5) * (61 + 90*tan2 + 45*tan4)
	x := secLat / nu
	xi := secLat / (6 * nu3) * (nu/rho + 2*tan2)
	xii := secLat / (120 * nu5) * (5 + 28*tan2 + 24*tan4)
	xiia := secLat / (5040 * nu7) * (61 + 662*tan2 + 1320*tan4 + 720*tan6)

	de := easting - ngE0
	de2 := de * de
	de3 := de2 * de
	de4 := de3 * de
	de5 := de4 * de
	de6 := de5 * de
	de7 := de6 * de

	phi := lat - vii*de2 + viii*de4 - ix*de6
	lambda := ngLon0 + x*de - xi*de3 + xii*de5 - xiia*de7

	return phi * 180 / math.Pi, lambda * 180 / math.Pi
}

// OSGB36 to WGS 84 Helmert parameters (Ordnance Survey, accurate to a few metres).
const (
	helmertTx = 446.448
	helmertTy = -125.157
	helmertTz = 542.060
	helmertS  = -20.4894 // ppm
	helmertRx = 0.1502   // arc seconds
	helmertRy = 0.2470
	helmertRz = 0.8421
)

// osgb36ToWGS84 shifts an OSGB36 latitude/longitude (degrees) onto the WGS 84 datum.
func osgb36ToWGS84(latDeg, lonDeg float64) (float64, float64) {
	x, y, z := toCartesian(airy1830, latDeg*math.Pi/180, lonDeg*math.Pi/180)

	s1 := helmertS/1e6 + 1
	rx := helmertRx / 3600 * math.Pi / 180
	ry := helmertRy / 3600 * math.Pi / 180
	rz := helmertRz / 3600 * math.Pi / 180

	x2 := helmertTx + x*s1 - y*rz + z*ry
	y2 := helmertTy + x*rz + y*s1 - z*rx
	z2 := helmertTz - x*ry + y*rx + z*s1

	lat, lon := fromCartesian(grs80, x2, y2, z2)
	return lat * 180 / math.Pi, lon * 180 / math.Pi
}

func toCartesian(e ellipsoid, lat, lon float64) (float64, float64, float64) {
	e2 := e.e2()
	sinLat := math.Sin(lat)
	nu := e.a / math.Sqrt(1-e2*sinLat*sinLat)
	x := nu * math.Cos(lat) * math.Cos(lon)
	y := nu * math.Cos(lat) * math.Sin(lon)
	z := (1 - e2) * nu * sinLat
	return x, y, z
}

func fromCartesian(e ellipsoid, x, y, z float64) (float64, float64) {
	e2 := e.e2()
	p := math.Sqrt(x*x + y*y)
	lat := math.Atan2(z, p*(1-e2))
	for i := 0; i < 20; i++ {
		sinLat := math.Sin(lat)
		nu := e.a / math.Sqrt(1-e2*sinLat*sinLat)
		next := math.Atan2(z+e2*nu*sinLat, p)
		if math.Abs(next-lat) < 1e-12 {
			lat = next
			break
		}
		lat = next
	}
	return lat, math.Atan2(y, x)
}
