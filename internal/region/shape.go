package region

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
)

// isPolygonType reports whether a shapefile holds polygon records.
func isPolygonType(t shp.ShapeType) bool {
	return t == shp.POLYGON || t == shp.POLYGONZ || t == shp.POLYGONM
}

// toGeometry converts a go-shp polygon record to a go-geom Polygon, or a MultiPolygon
// when the record has more than one outer ring. Returns nil for null or empty shapes.
func toGeometry(shape shp.Shape, srid int) geom.T {
	var parts []int32
	var points []shp.Point

	switch s := shape.(type) {
	case *shp.Polygon:
		parts, points = s.Parts, s.Points
	case *shp.PolygonZ:
		parts, points = s.Parts, s.Points
	case *shp.PolygonM:
		parts, points = s.Parts, s.Points
	default:
		return nil
	}

	rings := splitRings(parts, points)
	if len(rings) == 0 {
		return nil
	}

	polys := groupRings(rings)
	if len(polys) == 1 {
		flat, ends := flattenPolygon(polys[0], 0)
		return geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(srid)
	}

	var flat []float64
	endss := make([][]int, 0, len(polys))
	for _, p := range polys {
		pf, ends := flattenPolygon(p, len(flat))
		flat = append(flat, pf...)
		endss = append(endss, ends)
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss).SetSRID(srid)
}

// splitRings cuts the point array at each part offset. Degenerate rings are dropped.
func splitRings(parts []int32, points []shp.Point) [][]shp.Point {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	rings := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 3 {
			continue
		}
		rings = append(rings, points[start:end])
	}
	return rings
}

// groupRings assigns each hole to the outer ring before it. Shapefile outer rings run
// clockwise, holes counter-clockwise. A leading hole is promoted to an outer ring.
func groupRings(rings [][]shp.Point) [][][]shp.Point {
	var polys [][][]shp.Point
	for _, r := range rings {
		if signedArea(r) > 0 && len(polys) > 0 {
			last := len(polys) - 1
			polys[last] = append(polys[last], r)
			continue
		}
		polys = append(polys, [][]shp.Point{r})
	}
	return polys
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var sum float64
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum / 2
}

// flattenPolygon returns flat XY coordinates and ring end offsets, the latter shifted by
// offset so they index into an enclosing multi-polygon's coordinate slice.
func flattenPolygon(rings [][]shp.Point, offset int) ([]float64, []int) {
	var flat []float64
	ends := make([]int, 0, len(rings))
	for _, r := range rings {
		for _, p := range r {
			flat = append(flat, p.X, p.Y)
		}
		ends = append(ends, offset+len(flat))
	}
	return flat, ends
}
