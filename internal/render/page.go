package render

import (
	"encoding/json"
	"strings"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"maragu.dev/gomponents"
	"maragu.dev/gomponents/html"
)

// pageSpec is the data handed to the map script.
type pageSpec struct {
	ID       string          `json:"id"`
	Tiles    TileLayer       `json:"tiles"`
	Bounds   *[2][2]float64  `json:"bounds"`
	Features json.RawMessage `json:"features"`
	Layers   []pageLayer     `json:"layers"`
	Tooltips []string        `json:"tooltips,omitempty"`
	Active   int             `json:"active"`
	Style    pageStyle       `json:"style"`
}

type pageLayer struct {
	Name   string     `json:"name"`
	Fills   []string   `json:"fills"`
	Strokes []string   `json:"strokes,omitempty"`
	Popups  []string   `json:"popups"`
	Legend  pageLegend `json:"legend"`
}

type pageLegend struct {
	Position string `json:"position"`
	HTML     string `json:"html"`
}

type pageStyle struct {
	Opacity float64 `json:"opacity"`
	Border  string  `json:"border"`
	Weight  float64 `json:"weight"`
}

const pageCSS = `html, body { height: 100%; margin: 0; }
.choropleth { height: 100%; }
.legend { background: rgba(255, 255, 255, 0.9); padding: 6px 8px; font: 12px/18px sans-serif; border-radius: 4px; box-shadow: 0 0 12px rgba(0, 0, 0, 0.2); }
.legend i { width: 14px; height: 14px; float: left; margin: 2px 6px 0 0; }`

// Groups are Leaflet base layers, so the layer control is a radio set: selecting one
// group removes the other. The legend of the selected group replaces the previous one.
const pageScript = `(function () {
  var spec = __SPEC__;
  var map = L.map(spec.id);
  L.tileLayer(spec.tiles.url, {attribution: spec.tiles.attribution, maxZoom: spec.tiles.max_zoom}).addTo(map);
  var groups = {}, legends = {};
  spec.layers.forEach(function (layer) {
    groups[layer.name] = L.geoJSON(spec.features, {
      style: function (f) {
        var border = (layer.strokes && layer.strokes[f.properties.index]) || spec.style.border;
        return {fillColor: layer.fills[f.properties.index], fillOpacity: spec.style.opacity, color: border, weight: spec.style.weight};
      },
      onEachFeature: function (f, l) {
        l.bindPopup(layer.popups[f.properties.index]);
        var tip = spec.tooltips && spec.tooltips[f.properties.index];
        if (tip) { l.bindTooltip(tip, {sticky: true}); }
      }
    });
    var legend = L.control({position: layer.legend.position});
    legend.onAdd = function () {
      var div = L.DomUtil.create('div', 'legend');
      div.innerHTML = layer.legend.html;
      return div;
    };
    legends[layer.name] = legend;
  });
  var active = spec.layers[spec.active].name;
  groups[active].addTo(map);
  legends[active].addTo(map);
  L.control.layers(groups, null, {collapsed: false}).addTo(map);
  map.on('baselayerchange', function (e) {
    Object.keys(legends).forEach(function (name) { map.removeControl(legends[name]); });
    legends[e.name].addTo(map);
  });
  if (spec.bounds) { map.fitBounds(spec.bounds); } else { map.fitWorld(); }
})();`

func (im *InteractiveMap) spec() (pageSpec, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, im.Map.Len())}
	for i := 0; i < im.Map.Len(); i++ {
		fc.Features[i] = &geojson.Feature{
			ID:       im.Map.Key(i),
			Geometry: im.Map.Geometry(i),
			Properties: map[string]any{
				"key":   im.Map.Key(i),
				"index": i,
			},
		}
	}
	features, err := json.Marshal(&fc)
	if err != nil {
		return pageSpec{}, err
	}

	s := pageSpec{
		ID:       im.ID,
		Tiles:    im.opts.Tiles,
		Features: features,
		Tooltips: im.Tooltips,
		Active:   im.Toggle.ActiveIndex(),
		Style: pageStyle{
			Opacity: im.opts.Opacity,
			Border:  im.opts.BorderColor,
			Weight:  im.opts.BorderWidth,
		},
	}
	if b := im.Map.Bounds(); !b.IsEmpty() {
		s.Bounds = &[2][2]float64{{b.MinY, b.MinX}, {b.MaxY, b.MaxX}}
	}
	for _, l := range im.Layers {
		key := legendHTML(l.Legend)
		if l.Outline != nil {
			key += legendHTML(*l.Outline)
		}
		s.Layers = append(s.Layers, pageLayer{
			Name:    l.Spec.Name,
			Fills:   l.Fills,
			Strokes: l.Strokes,
			Popups:  l.Popups,
			Legend:  pageLegend{Position: l.Legend.Position, HTML: key},
		})
	}
	return s, nil
}

func legendHTML(l Legend) string {
	prop := "background:"
	if l.Border {
		prop = "border:2px solid "
	}
	nodes := []gomponents.Node{html.Strong(gomponents.Text(l.Title)), html.Br()}
	for _, t := range l.Ticks {
		nodes = append(nodes,
			html.I(html.Style(prop+t.Color)),
			gomponents.Text(t.Label),
			html.Br(),
		)
	}
	if l.NAColor != "" {
		nodes = append(nodes,
			html.I(html.Style(prop+l.NAColor)),
			gomponents.Text("No data"),
			html.Br(),
		)
	}
	return fragment(nodes...)
}

func (im *InteractiveMap) page() gomponents.Node {
	spec, err := im.spec()
	var data []byte
	if err == nil {
		data, err = json.Marshal(spec)
	}
	if err != nil {
		zap.L().Error("render: encode map data", zap.Error(err))
		data = []byte("null")
	}
	script := strings.Replace(pageScript, "__SPEC__", string(data), 1)

	return html.Doctype(
		html.HTML(
			html.Lang("en"),
			html.Head(
				html.Meta(html.Charset("utf-8")),
				html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
				html.TitleEl(gomponents.Text(im.Title)),
				html.Link(html.Rel("stylesheet"), html.Href(im.opts.LeafletCSS)),
				html.Script(html.Src(im.opts.LeafletJS)),
				html.StyleEl(gomponents.Raw(pageCSS)),
			),
			html.Body(
				html.Div(html.ID(im.ID), html.Class("choropleth")),
				html.Script(gomponents.Raw(script)),
			),
		),
	)
}
