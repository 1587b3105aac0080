package render

import (
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"maragu.dev/gomponents"
	"maragu.dev/gomponents/html"

	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/palette"
)

// TileLayer is the base map drawn under the measurement layers.
type TileLayer struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"max_zoom"`
}

// LayerSpec describes one measurement layer of an interactive map.
type LayerSpec struct {
	Column string
	// Name labels the layer group and titles its legend. Defaults to the column's
	// display name.
	Name    string
	Palette string
	Reverse bool
	// Legend is the corner the legend is drawn in. Defaults alternate bottomright,
	// bottomleft.
	Legend string
}

// InteractiveOptions configures the page around the layers.
type InteractiveOptions struct {
	Title       string
	Tiles       TileLayer
	Opacity     float64
	BorderColor string
	BorderWidth float64
	NAColor     string
	LeafletJS   string
	LeafletCSS  string
	// Tooltip lists columns shown when hovering a region. Repeated columns are listed once.
	Tooltip []string
}

// Layer is a laid-out measurement layer.
type Layer struct {
	Spec    LayerSpec
	Palette *palette.Palette
	Legend  Legend
	Fills   []string
	Popups  []string
	// Strokes holds per-region outline colors. Empty draws every outline in the page
	// border color.
	Strokes []string
	// Outline keys Strokes when they come from a column of their own.
	Outline *Legend
}

// InteractiveMap is a pan/zoomable choropleth with mutually exclusive layer groups.
type InteractiveMap struct {
	ID             string
	Title          string
	Map            *model.GeoFrame
	Layers         []Layer
	Toggle         *LayerToggle
	TooltipColumns []string
	Tooltips       []string

	opts InteractiveOptions
}

const (
	defaultLeafletJS  = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
	defaultLeafletCSS = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"
	defaultTiles      = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	defaultOpacity    = 0.7
	defaultMaxZoom    = 19
	defaultPageTitle  = "Choropleth"
)

// Interactive builds one toggleable layer per spec. The map table must be in a
// geographic CRS; an unknown CRS is accepted only when every coordinate is a valid
// longitude/latitude.
func Interactive(m *model.GeoFrame, layers []LayerSpec, opts InteractiveOptions) (*InteractiveMap, error) {
	if m == nil {
		return nil, model.Errorf(model.OrderViolation, "render: interactive map needs a map table")
	}
	if err := checkGeographic(m); err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, eris.New("render: interactive map needs at least one layer")
	}
	opts = withInteractiveDefaults(opts)

	im := &InteractiveMap{
		ID:    "map-" + uuid.NewString(),
		Title: opts.Title,
		Map:   m,
		opts:  opts,
	}

	columns := make(map[string]bool, len(layers))
	groups := make([]string, 0, len(layers))
	for i, spec := range layers {
		layer, err := buildLayer(m, spec, i, opts)
		if err != nil {
			return nil, err
		}
		if columns[layer.Spec.Column] {
			return nil, eris.Errorf("render: column %q is used by more than one layer", layer.Spec.Column)
		}
		columns[layer.Spec.Column] = true
		groups = append(groups, layer.Spec.Name)
		im.Layers = append(im.Layers, layer)
	}

	toggle, err := NewLayerToggle(groups...)
	if err != nil {
		return nil, err
	}
	im.Toggle = toggle

	if err := im.buildTooltips(opts.Tooltip); err != nil {
		return nil, err
	}

	zap.L().Debug("render: interactive map laid out",
		zap.String("id", im.ID),
		zap.Strings("groups", groups),
		zap.Int("regions", m.Len()),
	)
	return im, nil
}

func withInteractiveDefaults(opts InteractiveOptions) InteractiveOptions {
	if opts.Title == "" {
		opts.Title = defaultPageTitle
	}
	if opts.Tiles.URL == "" {
		opts.Tiles.URL = defaultTiles
	}
	if opts.Tiles.MaxZoom <= 0 {
		opts.Tiles.MaxZoom = defaultMaxZoom
	}
	if opts.Opacity <= 0 || opts.Opacity > 1 {
		opts.Opacity = defaultOpacity
	}
	if opts.BorderColor == "" {
		opts.BorderColor = defaultStroke
	}
	if opts.BorderWidth <= 0 {
		opts.BorderWidth = defaultOutline
	}
	if opts.LeafletJS == "" {
		opts.LeafletJS = defaultLeafletJS
	}
	if opts.LeafletCSS == "" {
		opts.LeafletCSS = defaultLeafletCSS
	}
	return opts
}

func checkGeographic(m *model.GeoFrame) error {
	c := m.CRS()
	switch {
	case c.Geographic:
		return nil
	case !c.Known():
		if m.Bounds().WithinLonLat() {
			zap.L().Warn("render: CRS unknown, treating coordinates as longitude/latitude")
			return nil
		}
		return model.Errorf(model.ProjectionError,
			"render: CRS unknown and coordinates fall outside longitude/latitude ranges; set boundary.crs")
	default:
		return model.Errorf(model.ProjectionError,
			"render: %s is projected; interactive maps need longitude/latitude, reproject to %s first", c, model.WGS84)
	}
}

func buildLayer(m *model.GeoFrame, spec LayerSpec, i int, opts InteractiveOptions) (Layer, error) {
	column, err := resolveColumn(m, spec.Column)
	if err != nil {
		return Layer{}, err
	}
	spec.Column = column
	if spec.Name == "" {
		spec.Name = DisplayName(column)
	}
	if spec.Palette == "" {
		spec.Palette = defaultScheme
	}
	if spec.Legend == "" {
		spec.Legend = BottomRight
		if i%2 == 1 {
			spec.Legend = BottomLeft
		}
	}
	if !validCorner(spec.Legend) {
		return Layer{}, eris.Errorf("render: layer %q legend position %q is not a map corner", spec.Name, spec.Legend)
	}

	values, err := m.Column(column)
	if err != nil {
		return Layer{}, eris.Wrap(err, "render: read layer column")
	}
	p, err := palette.ForValues(spec.Palette, values, palette.Options{Reverse: spec.Reverse, NAColor: opts.NAColor})
	if err != nil {
		return Layer{}, eris.Wrapf(err, "render: layer %q", spec.Name)
	}

	legend := buildLegend(column, spec.Name, p, values)
	legend.Group = spec.Name
	legend.Position = spec.Legend

	layer := Layer{
		Spec:    spec,
		Palette: p,
		Legend:  legend,
		Fills:   make([]string, m.Len()),
		Popups:  make([]string, m.Len()),
	}
	for r := 0; r < m.Len(); r++ {
		layer.Fills[r] = p.Color(values[r])
		layer.Popups[r] = fragment(
			html.Strong(gomponents.Text(m.Key(r))),
			html.Br(),
			gomponents.Text(spec.Name+": "+cellText(values[r])),
		)
	}
	return layer, nil
}

// buildTooltips resolves and de-duplicates the hover columns and renders one tooltip per
// region.
func (im *InteractiveMap) buildTooltips(columns []string) error {
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		name, err := resolveColumn(im.Map, c)
		if err != nil {
			return eris.Wrap(err, "render: tooltip column")
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		im.TooltipColumns = append(im.TooltipColumns, name)
	}
	if len(im.TooltipColumns) == 0 {
		return nil
	}

	im.Tooltips = make([]string, im.Map.Len())
	for r := 0; r < im.Map.Len(); r++ {
		var nodes []gomponents.Node
		for j, c := range im.TooltipColumns {
			if j > 0 {
				nodes = append(nodes, html.Br())
			}
			nodes = append(nodes,
				html.Strong(gomponents.Text(DisplayName(c))),
				gomponents.Text(": "+cellText(im.Map.Value(r, c))),
			)
		}
		im.Tooltips[r] = fragment(nodes...)
	}
	return nil
}

// Select makes group the visible layer and legend.
func (im *InteractiveMap) Select(group string) error { return im.Toggle.Select(group) }

// LayerVisible reports whether group's polygons are shown.
func (im *InteractiveMap) LayerVisible(group string) bool { return im.Toggle.Visible(group) }

// LegendVisible reports whether group's legend is shown. Legends follow their layer.
func (im *InteractiveMap) LegendVisible(group string) bool { return im.Toggle.Visible(group) }

// Node returns the HTML document.
func (im *InteractiveMap) Node() gomponents.Node { return im.page() }

// Render writes the HTML document to w.
func (im *InteractiveMap) Render(w io.Writer) error {
	if err := im.page().Render(w); err != nil {
		return eris.Wrap(err, "render: write html")
	}
	return nil
}

// TooltipOptions configures the conversion of a static map to an interactive one.
type TooltipOptions struct {
	// Columns shown on hover. Empty shows the identifier, the fill column and the
	// border column.
	Columns []string
	InteractiveOptions
}

// Interactive converts the static map to a single-layer interactive map with hover
// tooltips, keeping its fill palette. Column-driven outlines keep their colors and,
// when they have one, their legend.
func (s *StaticMap) Interactive(opts TooltipOptions) (*InteractiveMap, error) {
	columns := opts.Columns
	if len(columns) == 0 {
		columns = []string{s.Map.KeyColumn(), s.Column}
		if s.borderColumn != "" {
			columns = append(columns, s.borderColumn)
		}
	}

	iopts := opts.InteractiveOptions
	iopts.Tooltip = columns
	if iopts.Title == "" {
		iopts.Title = s.Title
	}
	if iopts.NAColor == "" {
		iopts.NAColor = s.Fill.NAColor()
	}
	if iopts.BorderColor == "" {
		iopts.BorderColor = s.opts.Border.Color
	}
	if iopts.BorderWidth <= 0 {
		iopts.BorderWidth = s.opts.Border.Width
	}

	layer := LayerSpec{
		Column:  s.Column,
		Name:    s.Legends[0].Title,
		Palette: s.Fill.Scheme(),
		Reverse: s.opts.Reverse,
		Legend:  BottomRight,
	}
	im, err := Interactive(s.Map, []LayerSpec{layer}, iopts)
	if err != nil {
		return nil, err
	}
	if s.borderColumn != "" {
		l := &im.Layers[0]
		l.Strokes = make([]string, len(s.Regions))
		for i, r := range s.Regions {
			l.Strokes[i] = r.Stroke
		}
		for i := range s.Legends {
			if s.Legends[i].Border {
				outline := s.Legends[i]
				l.Outline = &outline
			}
		}
	}
	return im, nil
}

func cellText(v model.Value) string {
	if v.IsNull() {
		return "NA"
	}
	return v.Text()
}

// fragment renders nodes to an HTML string for embedding in popups and legends.
func fragment(nodes ...gomponents.Node) string {
	var b strings.Builder
	_ = gomponents.Group(nodes).Render(&b)
	return b.String()
}
