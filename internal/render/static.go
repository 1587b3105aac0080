package render

import (
	"io"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"maragu.dev/gomponents"

	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/palette"
)

// BorderOptions styles region outlines. Column, when set, colors each outline from its
// own palette over that column; otherwise Color is used for every region.
type BorderOptions struct {
	Color   string
	Column  string
	Palette string
	Reverse bool
	Width   float64
}

// StaticOptions configures a static choropleth.
type StaticOptions struct {
	Title       string
	Column      string
	DisplayName string
	Palette     string
	Reverse     bool
	NAColor     string
	Border      BorderOptions
	Width       int
	Height      int
}

// RegionStyle is the drawn appearance of one region.
type RegionStyle struct {
	Key    string
	Fill   string
	Stroke string
}

// StaticMap is a laid-out static choropleth, ready to be written as SVG or converted to
// a single-layer interactive map.
type StaticMap struct {
	Map     *model.GeoFrame
	Column  string
	Title   string
	Fill    *palette.Palette
	Border  *palette.Palette
	Regions []RegionStyle
	Legends []Legend

	opts         StaticOptions
	borderColumn string
}

const (
	defaultWidth   = 800
	defaultHeight  = 800
	defaultScheme  = "viridis"
	defaultStroke  = "#ffffff"
	legendWidth    = 220
	mapPadding     = 10.0
	titleHeight    = 32
	swatchSize     = 16
	swatchSpacing  = 22
	legendGap      = 28
	defaultOutline = 0.5
)

// Static colors every region of m by opts.Column. Regions without a value are drawn in
// the palette's NA color rather than omitted.
func Static(m *model.GeoFrame, opts StaticOptions) (*StaticMap, error) {
	if m == nil {
		return nil, model.Errorf(model.OrderViolation, "render: static map needs a map table")
	}

	column, err := resolveColumn(m, opts.Column)
	if err != nil {
		return nil, err
	}
	if opts.Palette == "" {
		opts.Palette = defaultScheme
	}
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultHeight
	}
	if opts.Border.Width <= 0 {
		opts.Border.Width = defaultOutline
	}
	if opts.Border.Color == "" {
		opts.Border.Color = defaultStroke
	}
	title := opts.DisplayName
	if title == "" {
		title = DisplayName(column)
	}

	values, err := m.Column(column)
	if err != nil {
		return nil, eris.Wrap(err, "render: read fill column")
	}
	fill, err := palette.ForValues(opts.Palette, values, palette.Options{Reverse: opts.Reverse, NAColor: opts.NAColor})
	if err != nil {
		return nil, err
	}

	s := &StaticMap{
		Map:     m,
		Column:  column,
		Title:   opts.Title,
		Fill:    fill,
		Legends: []Legend{buildLegend(column, title, fill, values)},
		opts:    opts,
	}

	var borderValues []model.Value
	if opts.Border.Column != "" {
		bc, err := resolveColumn(m, opts.Border.Column)
		if err != nil {
			return nil, eris.Wrap(err, "render: border column")
		}
		s.borderColumn = bc
		if bc == column {
			// Same column: outlines follow the fill palette and share its legend.
			s.Border = fill
			borderValues = values
		} else {
			borderValues, err = m.Column(bc)
			if err != nil {
				return nil, eris.Wrap(err, "render: read border column")
			}
			scheme := opts.Border.Palette
			if scheme == "" {
				scheme = opts.Palette
			}
			s.Border, err = palette.ForValues(scheme, borderValues, palette.Options{Reverse: opts.Border.Reverse, NAColor: opts.NAColor})
			if err != nil {
				return nil, eris.Wrap(err, "render: border palette")
			}
			bl := buildLegend(bc, DisplayName(bc), s.Border, borderValues)
			bl.Border = true
			s.Legends = append(s.Legends, bl)
		}
	}

	s.Regions = make([]RegionStyle, m.Len())
	for i := 0; i < m.Len(); i++ {
		stroke := opts.Border.Color
		if s.Border != nil {
			stroke = s.Border.Color(borderValues[i])
		}
		s.Regions[i] = RegionStyle{Key: m.Key(i), Fill: fill.Color(values[i]), Stroke: stroke}
	}

	zap.L().Debug("render: static map laid out",
		zap.String("column", column),
		zap.Int("regions", m.Len()),
		zap.Int("legends", len(s.Legends)),
	)
	return s, nil
}

// Node returns the SVG document.
func (s *StaticMap) Node() gomponents.Node { return s.svg() }

// Render writes the SVG document to w.
func (s *StaticMap) Render(w io.Writer) error {
	if err := s.svg().Render(w); err != nil {
		return eris.Wrap(err, "render: write svg")
	}
	return nil
}

// projector maps CRS coordinates into the SVG viewport, y down.
type projector struct {
	minX, maxY float64
	kx, ky     float64
	offX, offY float64
}

// newProjector fits b into a w x h box. Geographic extents are stretched by cos(latitude)
// so shapes keep their ground aspect ratio.
func newProjector(b model.BBox, geographic bool, x0, y0, w, h float64) projector {
	if b.IsEmpty() {
		return projector{kx: 1, ky: 1, offX: x0, offY: y0}
	}

	aspect := 1.0
	if geographic {
		mid := (b.MinY + b.MaxY) / 2
		aspect = math.Cos(mid * math.Pi / 180)
	}

	dw, dh := b.Width()*aspect, b.Height()
	var scale float64
	switch {
	case dw > 0 && dh > 0:
		scale = math.Min(w/dw, h/dh)
	case dw > 0:
		scale = w / dw
	case dh > 0:
		scale = h / dh
	default:
		scale = 1
	}

	return projector{
		minX: b.MinX,
		maxY: b.MaxY,
		kx:   scale * aspect,
		ky:   scale,
		offX: x0 + (w-dw*scale)/2,
		offY: y0 + (h-dh*scale)/2,
	}
}

func (p projector) point(x, y float64) (float64, float64) {
	return p.offX + (x-p.minX)*p.kx, p.offY + (p.maxY-y)*p.ky
}
