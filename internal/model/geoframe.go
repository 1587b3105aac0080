package model

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// GeoFrame is a Frame whose rows each carry a polygonal boundary. Region tables and
// joined map tables are GeoFrames; renderers only accept GeoFrames.
type GeoFrame struct {
	*Frame
	geoms []geom.T
	crs   CRS
}

// NewGeoFrame attaches one geometry per row of frame. Keys must be unique and every
// geometry must be a non-nil Polygon or MultiPolygon.
func NewGeoFrame(frame *Frame, geoms []geom.T, crs CRS) (*GeoFrame, error) {
	if frame == nil {
		return nil, eris.New("model: nil frame")
	}
	if len(geoms) != frame.Len() {
		return nil, eris.Errorf("model: %d geometries for %d rows", len(geoms), frame.Len())
	}

	seen := make(map[string]struct{}, frame.Len())
	for i := 0; i < frame.Len(); i++ {
		k := frame.Key(i)
		if _, dup := seen[k]; dup {
			return nil, eris.Errorf("model: duplicate region id %q", k)
		}
		seen[k] = struct{}{}

		switch g := geoms[i].(type) {
		case *geom.Polygon:
			if g == nil {
				return nil, eris.Errorf("model: nil geometry for region %q", k)
			}
		case *geom.MultiPolygon:
			if g == nil {
				return nil, eris.Errorf("model: nil geometry for region %q", k)
			}
		case nil:
			return nil, eris.Errorf("model: missing geometry for region %q", k)
		default:
			return nil, eris.Errorf("model: region %q has non-polygonal geometry %T", k, g)
		}
	}

	return &GeoFrame{Frame: frame, geoms: geoms, crs: crs}, nil
}

// Geometry returns the boundary of row i.
func (g *GeoFrame) Geometry(i int) geom.T { return g.geoms[i] }

// CRS returns the coordinate reference system of every geometry in the frame.
func (g *GeoFrame) CRS() CRS { return g.crs }

// Bounds returns the envelope of all geometries.
func (g *GeoFrame) Bounds() BBox {
	b := EmptyBBox()
	for _, gm := range g.geoms {
		b = b.Extend(gm)
	}
	return b
}

// Subset returns the rows at the given positions, in that order.
func (g *GeoFrame) Subset(rows []int) *GeoFrame {
	geoms := make([]geom.T, len(rows))
	for i, r := range rows {
		geoms[i] = g.geoms[r]
	}
	return &GeoFrame{Frame: g.Frame.subset(rows), geoms: geoms, crs: g.crs}
}

// WithGeometries returns a frame with the same rows and replaced geometries, e.g. after
// reprojection.
func (g *GeoFrame) WithGeometries(geoms []geom.T, crs CRS) (*GeoFrame, error) {
	return NewGeoFrame(g.Frame, geoms, crs)
}
