package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	"maragu.dev/gomponents"
)

const svgNS = "http://www.w3.org/2000/svg"

func num(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

func (s *StaticMap) svg() gomponents.Node {
	w, h := float64(s.opts.Width), float64(s.opts.Height)
	top := 0.0
	if s.Title != "" {
		top = titleHeight
	}
	proj := newProjector(s.Map.Bounds(), s.Map.CRS().Geographic,
		mapPadding, top+mapPadding, w-2*mapPadding, h-top-2*mapPadding)

	paths := make([]gomponents.Node, len(s.Regions))
	for i, r := range s.Regions {
		label := r.Key + ": " + cellText(s.Map.Value(i, s.Column))
		paths[i] = gomponents.El("path",
			gomponents.Attr("d", pathData(s.Map.Geometry(i), proj)),
			gomponents.Attr("fill", r.Fill),
			gomponents.Attr("stroke", r.Stroke),
			gomponents.Attr("data-key", r.Key),
			gomponents.El("title", gomponents.Text(label)),
		)
	}

	total := w + legendWidth
	return gomponents.El("svg",
		gomponents.Attr("xmlns", svgNS),
		gomponents.Attr("width", num(total)),
		gomponents.Attr("height", num(h)),
		gomponents.Attr("viewBox", fmt.Sprintf("0 0 %s %s", num(total), num(h))),
		gomponents.Attr("font-family", "sans-serif"),
		gomponents.El("rect", gomponents.Attr("width", "100%"), gomponents.Attr("height", "100%"), gomponents.Attr("fill", "#ffffff")),
		gomponents.If(s.Title != "", gomponents.El("text",
			gomponents.Attr("x", num(mapPadding)),
			gomponents.Attr("y", num(titleHeight-8)),
			gomponents.Attr("font-size", "20"),
			gomponents.Text(s.Title),
		)),
		gomponents.El("g",
			gomponents.Attr("class", "regions"),
			gomponents.Attr("fill-rule", "evenodd"),
			gomponents.Attr("stroke-linejoin", "round"),
			gomponents.Attr("stroke-width", num(s.opts.Border.Width)),
			gomponents.Group(paths),
		),
		s.svgLegends(w+mapPadding, top+mapPadding+12),
	)
}

func (s *StaticMap) svgLegends(x, y float64) gomponents.Node {
	var nodes []gomponents.Node
	for _, l := range s.Legends {
		var items []gomponents.Node
		items = append(items, gomponents.El("text",
			gomponents.Attr("x", num(x)),
			gomponents.Attr("y", num(y)),
			gomponents.Attr("font-size", "13"),
			gomponents.Attr("font-weight", "bold"),
			gomponents.Text(l.Title),
		))
		y += 10

		for _, t := range l.Ticks {
			items = append(items, swatch(x, y, t.Color, t.Label, l.Border))
			y += swatchSpacing
		}
		if l.NAColor != "" {
			items = append(items, swatch(x, y, l.NAColor, "No data", l.Border))
			y += swatchSpacing
		}

		nodes = append(nodes, gomponents.El("g",
			gomponents.Attr("class", "legend"),
			gomponents.Attr("data-column", l.Column),
			gomponents.Group(items),
		))
		y += legendGap
	}
	return gomponents.Group(nodes)
}

func swatch(x, y float64, color, label string, outline bool) gomponents.Node {
	rect := []gomponents.Node{
		gomponents.Attr("x", num(x)),
		gomponents.Attr("y", num(y)),
		gomponents.Attr("width", strconv.Itoa(swatchSize)),
		gomponents.Attr("height", strconv.Itoa(swatchSize)),
	}
	if outline {
		rect = append(rect, gomponents.Attr("fill", "none"), gomponents.Attr("stroke", color), gomponents.Attr("stroke-width", "3"))
	} else {
		rect = append(rect, gomponents.Attr("fill", color), gomponents.Attr("stroke", "#666666"), gomponents.Attr("stroke-width", "0.5"))
	}

	return gomponents.Group([]gomponents.Node{
		gomponents.El("rect", rect...),
		gomponents.El("text",
			gomponents.Attr("x", num(x+swatchSize+8)),
			gomponents.Attr("y", num(y+swatchSize-3)),
			gomponents.Attr("font-size", "12"),
			gomponents.Text(label),
		),
	})
}

// pathData draws every ring of a polygonal geometry as a closed subpath.
func pathData(g geom.T, p projector) string {
	var b strings.Builder
	flat, stride := g.FlatCoords(), g.Stride()

	rings := func(ends []int, start int) int {
		for _, end := range ends {
			for i := start; i+1 < end; i += stride {
				x, y := p.point(flat[i], flat[i+1])
				if i == start {
					b.WriteString("M")
				} else {
					b.WriteString("L")
				}
				b.WriteString(num(x))
				b.WriteByte(' ')
				b.WriteString(num(y))
			}
			if end > start {
				b.WriteString("Z")
			}
			start = end
		}
		return start
	}

	switch t := g.(type) {
	case *geom.Polygon:
		rings(t.Ends(), 0)
	case *geom.MultiPolygon:
		start := 0
		for _, ends := range t.Endss() {
			start = rings(ends, start)
		}
	}
	return b.String()
}
