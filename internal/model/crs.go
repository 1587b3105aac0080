package model

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// CRS identifies a coordinate reference system. The zero value means unknown.
type CRS struct {
	EPSG       int    `json:"epsg,omitempty"`
	Name       string `json:"name,omitempty"`
	Geographic bool   `json:"geographic"`
}

// Well-known reference systems.
var (
	WGS84               = CRS{EPSG: 4326, Name: "WGS 84", Geographic: true}
	OSGB36              = CRS{EPSG: 4277, Name: "OSGB36", Geographic: true}
	BritishNationalGrid = CRS{EPSG: 27700, Name: "OSGB36 / British National Grid"}
	WebMercator         = CRS{EPSG: 3857, Name: "WGS 84 / Pseudo-Mercator"}
)

// Known reports whether the CRS was identified at all.
func (c CRS) Known() bool { return c.EPSG != 0 || c.Name != "" }

func (c CRS) String() string {
	switch {
	case c.EPSG != 0 && c.Name != "":
		return fmt.Sprintf("EPSG:%d (%s)", c.EPSG, c.Name)
	case c.EPSG != 0:
		return fmt.Sprintf("EPSG:%d", c.EPSG)
	case c.Name != "":
		return c.Name
	default:
		return "unknown"
	}
}

// BBox is an axis-aligned envelope.
type BBox struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// EmptyBBox returns an envelope that any Extend call replaces.
func EmptyBBox() BBox {
	return BBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// IsEmpty reports whether no coordinate has been added.
func (b BBox) IsEmpty() bool { return b.MinX > b.MaxX || b.MinY > b.MaxY }

// Width is MaxX-MinX.
func (b BBox) Width() float64 { return b.MaxX - b.MinX }

// Height is MaxY-MinY.
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Extend grows the envelope to cover g.
func (b BBox) Extend(g geom.T) BBox {
	if g == nil {
		return b
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		x, y := flat[i], flat[i+1]
		b.MinX = math.Min(b.MinX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxX = math.Max(b.MaxX, x)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

// WithinLonLat reports whether the envelope fits in longitude/latitude ranges.
func (b BBox) WithinLonLat() bool {
	if b.IsEmpty() {
		return true
	}
	return b.MinX >= -180 && b.MaxX <= 180 && b.MinY >= -90 && b.MaxY <= 90
}
