// Package palette maps measurement values onto continuous named color schemes.
package palette

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rotisserie/eris"

	"github.com/sells-group/choropleth/internal/model"
)

// DefaultNAColor fills regions whose measurement is missing.
const DefaultNAColor = "#bdbdbd"

// Domain is the observed value range a palette spans. Integral is set when every
// observed value is a whole number, as for quintiles and deciles.
type Domain struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Integral bool    `json:"integral,omitempty"`
	Empty    bool    `json:"empty,omitempty"`
}

// ObservedDomain returns the min/max of the numeric values, ignoring nulls and text.
func ObservedDomain(values []model.Value) Domain {
	d := Domain{Min: math.Inf(1), Max: math.Inf(-1), Integral: true}
	for _, v := range values {
		if f, ok := v.Float(); ok {
			d.Min = math.Min(d.Min, f)
			d.Max = math.Max(d.Max, f)
			d.Integral = d.Integral && isIntegral(f)
		}
	}
	if d.Min > d.Max {
		return Domain{Empty: true}
	}
	return d
}

// Options tunes a palette.
type Options struct {
	Reverse bool
	NAColor string
}

// Palette is a pure value -> color function over a fixed domain.
type Palette struct {
	scheme  string
	domain  Domain
	reverse bool
	na      string
	stops   []colorful.Color
}

// Schemes lists the supported scheme names.
func Schemes() []string {
	names := make([]string, 0, len(schemes))
	for n := range schemes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds a palette for scheme over domain. Scheme names match case-insensitively.
func New(scheme string, domain Domain, opts Options) (*Palette, error) {
	name, hexes, ok := lookup(scheme)
	if !ok {
		return nil, eris.Errorf("palette: unknown scheme %q (known: %s)", scheme, strings.Join(Schemes(), ", "))
	}

	stops := make([]colorful.Color, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, eris.Wrapf(err, "palette: scheme %s stop %d", name, i)
		}
		stops[i] = c
	}

	na := opts.NAColor
	if na == "" {
		na = DefaultNAColor
	}
	if _, err := colorful.Hex(na); err != nil {
		return nil, eris.Wrapf(err, "palette: NA color %q", na)
	}

	return &Palette{scheme: name, domain: domain, reverse: opts.Reverse, na: na, stops: stops}, nil
}

// ForValues builds a palette whose domain is the observed range of values.
func ForValues(scheme string, values []model.Value, opts Options) (*Palette, error) {
	return New(scheme, ObservedDomain(values), opts)
}

func lookup(scheme string) (string, []string, bool) {
	if hexes, ok := schemes[scheme]; ok {
		return scheme, hexes, true
	}
	for name, hexes := range schemes {
		if strings.EqualFold(name, scheme) {
			return name, hexes, true
		}
	}
	return "", nil, false
}

// Scheme returns the canonical scheme name.
func (p *Palette) Scheme() string { return p.scheme }

// Domain returns the range the palette spans.
func (p *Palette) Domain() Domain { return p.domain }

// NAColor returns the fill used for missing values.
func (p *Palette) NAColor() string { return p.na }

// Color maps a cell to a hex color. Nulls, text and empty domains map to the NA color.
func (p *Palette) Color(v model.Value) string {
	f, ok := v.Float()
	if !ok || p.domain.Empty {
		return p.na
	}
	return p.ColorAt(f)
}

// ColorAt maps a number to a hex color, clamping to the domain.
func (p *Palette) ColorAt(f float64) string {
	if p.domain.Empty || math.IsNaN(f) {
		return p.na
	}

	t := 0.5
	if span := p.domain.Max - p.domain.Min; span > 0 {
		t = (f - p.domain.Min) / span
	}
	t = math.Max(0, math.Min(1, t))
	if p.reverse {
		t = 1 - t
	}

	pos := t * float64(len(p.stops)-1)
	i := int(math.Floor(pos))
	if i >= len(p.stops)-1 {
		return p.stops[len(p.stops)-1].Hex()
	}
	frac := pos - float64(i)
	if frac == 0 {
		return p.stops[i].Hex()
	}
	return p.stops[i].BlendLab(p.stops[i+1], frac).Clamped().Hex()
}

// Tick is one legend entry.
type Tick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
	Color string  `json:"color"`
}

// Ticks returns legend entries across the domain: every integer when the domain holds
// only whole numbers spanning at most 12, otherwise n evenly spaced values.
func (p *Palette) Ticks(n int) []Tick {
	if p.domain.Empty {
		return nil
	}
	if n < 2 {
		n = 2
	}

	var values []float64
	lo, hi := p.domain.Min, p.domain.Max
	switch {
	case lo == hi:
		values = []float64{lo}
	case p.domain.Integral && hi-lo <= 12:
		for v := lo; v <= hi; v++ {
			values = append(values, v)
		}
	default:
		step := (hi - lo) / float64(n-1)
		for i := 0; i < n; i++ {
			values = append(values, lo+step*float64(i))
		}
	}

	ticks := make([]Tick, len(values))
	for i, v := range values {
		ticks[i] = Tick{Value: v, Label: formatTick(v), Color: p.ColorAt(v)}
	}
	return ticks
}

func isIntegral(f float64) bool { return f == math.Trunc(f) }

func formatTick(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
