package render

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/model/modeltest"
)

func TestStatic_FilteredThreeRegions(t *testing.T) {
	m := simdMap(t, model.WGS84,
		[]string{"A", "Glasgow City", "1", "1"},
		[]string{"B", "Glasgow City", "2", "3"},
		[]string{"C", "Glasgow City", "3", "6"},
	)

	s, err := Static(m, StaticOptions{Title: "Glasgow", Column: "SIMD2020v2_Quintile"})
	require.NoError(t, err)

	require.Len(t, s.Regions, 3)
	assert.Equal(t, "#440154", s.Regions[0].Fill)
	assert.Equal(t, "#fde725", s.Regions[2].Fill)
	assert.Equal(t, "#ffffff", s.Regions[1].Stroke)

	require.Len(t, s.Legends, 1)
	assert.Equal(t, "SIMD2020v2 Quintile", s.Legends[0].Title)
	assert.Empty(t, s.Legends[0].NAColor)

	var b strings.Builder
	require.NoError(t, s.Render(&b))
	out := b.String()
	assert.Equal(t, 3, strings.Count(out, "<path "))
	assert.Contains(t, out, `data-key="A"`)
	assert.Contains(t, out, "Glasgow")
	assert.Contains(t, out, "<title>B: 2</title>")
	assert.NotContains(t, out, "No data")
}

func TestStatic_MissingValueDrawnInNAColor(t *testing.T) {
	s, err := Static(fiveZoneMap(t, model.WGS84), StaticOptions{Column: "SIMD2020v2_Quintile"})
	require.NoError(t, err)

	require.Len(t, s.Regions, 5)
	assert.Equal(t, "E", s.Regions[4].Key)
	assert.Equal(t, "#bdbdbd", s.Regions[4].Fill)
	assert.Equal(t, "#bdbdbd", s.Legends[0].NAColor)

	var b strings.Builder
	require.NoError(t, s.Render(&b))
	out := b.String()
	assert.Equal(t, 5, strings.Count(out, "<path "), "regions without values are still drawn")
	assert.Contains(t, out, "<title>E: NA</title>")
	assert.Contains(t, out, "No data")
}

func TestStatic_CustomNAColorAndReverse(t *testing.T) {
	s, err := Static(fiveZoneMap(t, model.WGS84), StaticOptions{
		Column:  "SIMD2020v2_Quintile",
		Reverse: true,
		NAColor: "#000000",
	})
	require.NoError(t, err)

	assert.Equal(t, "#fde725", s.Regions[0].Fill)
	assert.Equal(t, "#000000", s.Regions[4].Fill)
}

func TestStatic_BorderSameColumnSharesLegend(t *testing.T) {
	s, err := Static(fiveZoneMap(t, model.WGS84), StaticOptions{
		Column: "SIMD2020v2_Quintile",
		Border: BorderOptions{Column: "SIMD2020v2_Quintile"},
	})
	require.NoError(t, err)

	assert.Same(t, s.Fill, s.Border)
	assert.Len(t, s.Legends, 1)
	for _, r := range s.Regions {
		assert.Equal(t, r.Fill, r.Stroke)
	}
}

func TestStatic_BorderOtherColumnGetsOwnLegend(t *testing.T) {
	s, err := Static(fiveZoneMap(t, model.WGS84), StaticOptions{
		Column: "SIMD2020v2_Quintile",
		Border: BorderOptions{Column: "SIMD2020v2_Decile", Palette: "magma"},
	})
	require.NoError(t, err)

	require.Len(t, s.Legends, 2)
	assert.True(t, s.Legends[1].Border)
	assert.Equal(t, "SIMD2020v2_Decile", s.Legends[1].Column)
	assert.Equal(t, "magma", s.Border.Scheme())
	assert.NotEqual(t, s.Regions[0].Fill, s.Regions[0].Stroke)

	var b strings.Builder
	require.NoError(t, s.Render(&b))
	assert.Equal(t, 2, strings.Count(b.String(), `class="legend"`))
	assert.Contains(t, b.String(), `fill="none"`)
}

func TestStatic_Errors(t *testing.T) {
	m := fiveZoneMap(t, model.WGS84)

	_, err := Static(nil, StaticOptions{Column: "x"})
	assert.True(t, model.IsKind(err, model.OrderViolation))

	_, err = Static(m, StaticOptions{Column: "Income"})
	assert.Error(t, err)

	_, err = Static(m, StaticOptions{Column: "SIMD2020v2_Quintile", Palette: "rainbow"})
	assert.Error(t, err)

	_, err = Static(m, StaticOptions{Column: "SIMD2020v2_Quintile", Border: BorderOptions{Column: "nope"}})
	assert.Error(t, err)
}

func TestStatic_ProjectedCRS(t *testing.T) {
	s, err := Static(fiveZoneMap(t, model.BritishNationalGrid), StaticOptions{Column: "SIMD2020v2_Decile"})
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, s.Render(&b))
	assert.Equal(t, 5, strings.Count(b.String(), "<path "))
}

func TestNewProjector_GeographicAspect(t *testing.T) {
	b := model.BBox{MinX: -4.30, MinY: 55.80, MaxX: -4.20, MaxY: 55.90}

	p := newProjector(b, true, 0, 0, 400, 400)
	x0, y0 := p.point(b.MinX, b.MaxY)
	x1, y1 := p.point(b.MaxX, b.MinY)

	assert.InDelta(t, 400, y1-y0, 1e-6, "height fills the box")
	want := 400 * math.Cos(55.85*math.Pi/180)
	assert.InDelta(t, want, x1-x0, 1e-6, "longitude shrinks by cos(latitude)")
	assert.InDelta(t, (400-want)/2, x0, 1e-6, "centred horizontally")

	flat := newProjector(b, false, 0, 0, 400, 400)
	fx0, _ := flat.point(b.MinX, b.MaxY)
	fx1, _ := flat.point(b.MaxX, b.MinY)
	assert.InDelta(t, 400, fx1-fx0, 1e-6)
}

func TestNewProjector_Degenerate(t *testing.T) {
	p := newProjector(model.EmptyBBox(), true, 5, 7, 100, 100)
	x, y := p.point(0, 0)
	assert.Equal(t, 5.0, x)
	assert.Equal(t, 7.0, y)

	line := newProjector(model.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 0}, false, 0, 0, 100, 100)
	x, _ = line.point(10, 0)
	assert.InDelta(t, 100, x, 1e-9)
}

func TestPathData(t *testing.T) {
	p := projector{kx: 1, ky: 1, maxY: 10}

	square := modeltest.Square(0, 0, 10)
	assert.Equal(t, "M0.00 10.00L0.00 0.00L10.00 0.00L10.00 10.00L0.00 10.00Z", pathData(square, p))

	withHole := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 0, 10, 10, 10, 10, 0, 0, 0,
		2, 2, 4, 2, 4, 4, 2, 2,
	}, []int{10, 18})
	d := pathData(withHole, p)
	assert.Equal(t, 2, strings.Count(d, "M"))
	assert.Equal(t, 2, strings.Count(d, "Z"))

	multi := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, multi.Push(modeltest.Square(0, 0, 1)))
	require.NoError(t, multi.Push(modeltest.Square(5, 5, 1)))
	d = pathData(multi, p)
	assert.Equal(t, 2, strings.Count(d, "M"))
	assert.True(t, strings.HasPrefix(d, "M0.00 10.00"))
	assert.Contains(t, d, "M5.00 5.00")
}
