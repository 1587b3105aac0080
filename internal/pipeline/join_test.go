package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/model/modeltest"
)

var simdHeader = []string{"DataZone", "Council_area", "SIMD2020v2_Quintile", "SIMD2020v2_Decile"}

// fiveZones is the A..E fixture: regions A-E and a quintile/decile per zone.
func fiveZones(t *testing.T) (*model.GeoFrame, *model.Frame) {
	t.Helper()
	regions := modeltest.Regions(t, model.WGS84, "A", "B", "C", "D", "E")
	measures := modeltest.Measures(t, simdHeader,
		[]string{"A", "Glasgow City", "1", "1"},
		[]string{"B", "Glasgow City", "2", "3"},
		[]string{"C", "Glasgow City", "3", "6"},
		[]string{"D", "South Lanarkshire", "4", "8"},
		[]string{"E", "South Lanarkshire", "5", "10"},
	)
	return regions, measures
}

func TestLeftJoin_RegionsFirst(t *testing.T) {
	regions, measures := fiveZones(t)

	joined, report, err := LeftJoin(regions, measures)
	require.NoError(t, err)

	m, ok := joined.(*model.GeoFrame)
	require.True(t, ok, "region table on the left keeps geometry")
	assert.Equal(t, []string{"DataZone", "Name", "Council_area", "SIMD2020v2_Quintile", "SIMD2020v2_Decile"}, m.Columns())
	assert.Equal(t, "DataZone", m.KeyColumn())
	assert.Equal(t, model.WGS84, m.CRS())
	assert.Equal(t, 5, report.Matched)
	assert.Empty(t, report.UnmatchedKeys)
	assert.Empty(t, report.Warnings)

	for i := 0; i < m.Len(); i++ {
		assert.Same(t, regions.Geometry(i), m.Geometry(i))
	}
	q, _ := m.Value(3, "SIMD2020v2_Quintile").Float()
	assert.Equal(t, 4.0, q)
}

func TestLeftJoin_Asymmetry(t *testing.T) {
	tests := []struct {
		name     string
		regions  []string
		measures [][]string
	}{
		{name: "full overlap", regions: []string{"A", "B"}, measures: [][]string{{"A", "x", "1", "1"}, {"B", "x", "2", "2"}}},
		{name: "partial overlap", regions: []string{"A", "B", "C"}, measures: [][]string{{"B", "x", "2", "2"}, {"Z", "x", "5", "5"}}},
		{name: "no overlap", regions: []string{"A"}, measures: [][]string{{"Z", "x", "5", "5"}}},
		{name: "empty regions", regions: nil, measures: [][]string{{"A", "x", "1", "1"}}},
		{name: "empty measures", regions: []string{"A", "B"}, measures: nil},
		{name: "both empty", regions: nil, measures: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regions := modeltest.Regions(t, model.WGS84, tt.regions...)
			measures := modeltest.Measures(t, simdHeader, tt.measures...)

			forward, _, err := LeftJoin(regions, measures)
			require.NoError(t, err)
			_, ok := forward.(*model.GeoFrame)
			assert.True(t, ok, "regions-first join is spatial")
			_, err = AsMap(forward)
			assert.NoError(t, err)

			backward, _, err := LeftJoin(measures, regions)
			require.NoError(t, err)
			_, ok = backward.(*model.GeoFrame)
			assert.False(t, ok, "measurements-first join is not spatial")
			_, err = AsMap(backward)
			assert.True(t, model.IsKind(err, model.OrderViolation))

			assert.Equal(t, len(tt.regions), forward.Len())
			assert.Equal(t, len(tt.measures), backward.Len())
		})
	}
}

func TestLeftJoin_WrongOrderGeometryIsText(t *testing.T) {
	regions, measures := fiveZones(t)

	backward, _, err := LeftJoin(measures, regions)
	require.NoError(t, err)

	idx := backward.ColumnIndex(GeometryColumn)
	require.GreaterOrEqual(t, idx, 0)
	cell := backward.Row(0)[idx]
	assert.Equal(t, model.KindString, cell.Kind())
	assert.True(t, strings.HasPrefix(cell.Text(), "POLYGON"), cell.Text())
}

func TestLeftJoin_RowCountEqualsRegionCount(t *testing.T) {
	regions := modeltest.Regions(t, model.WGS84, "A", "B", "C")
	measures := modeltest.Measures(t, simdHeader,
		[]string{"A", "x", "1", "1"},
		[]string{"A", "x", "2", "2"},
		[]string{"A", "x", "3", "3"},
		[]string{"C", "x", "4", "4"},
		[]string{"Q", "x", "5", "5"},
	)

	joined, report, err := LeftJoin(regions, measures)
	require.NoError(t, err)
	assert.Equal(t, regions.Len(), joined.Len())
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, []string{"B"}, report.UnmatchedKeys)
}

func TestLeftJoin_DuplicateKeyFirstWins(t *testing.T) {
	regions := modeltest.Regions(t, model.WGS84, "A", "B")
	measures := modeltest.Measures(t, simdHeader,
		[]string{"A", "x", "1", "1"},
		[]string{"A", "x", "5", "9"},
		[]string{"B", "x", "2", "2"},
		[]string{"B", "x", "3", "3"},
	)

	joined, report, err := LeftJoin(regions, measures)
	require.NoError(t, err)

	m := joined.(*model.GeoFrame)
	q, _ := m.Value(0, "SIMD2020v2_Quintile").Float()
	assert.Equal(t, 1.0, q)
	q, _ = m.Value(1, "SIMD2020v2_Quintile").Float()
	assert.Equal(t, 2.0, q)

	assert.Equal(t, []string{"A", "B"}, report.DuplicateKeys)
	assert.True(t, report.HasWarning(model.DuplicateKey))
	assert.False(t, report.HasWarning(model.JoinKeyMismatch))
}

func TestLeftJoin_ZeroOverlapWarns(t *testing.T) {
	regions := modeltest.Regions(t, model.WGS84, "A", "B")
	measures := modeltest.Measures(t, simdHeader, []string{"S01009758", "x", "1", "1"})

	joined, report, err := LeftJoin(regions, measures)
	require.NoError(t, err, "a key mismatch is a warning")
	require.True(t, report.HasWarning(model.JoinKeyMismatch))
	assert.Equal(t, model.StageJoin, report.Warnings[0].Stage)

	m := joined.(*model.GeoFrame)
	for i := 0; i < m.Len(); i++ {
		assert.True(t, m.Value(i, "SIMD2020v2_Quintile").IsNull())
	}
}

func TestLeftJoin_ColumnCollision(t *testing.T) {
	regions := modeltest.Regions(t, model.WGS84, "A")
	measures := modeltest.Measures(t, []string{"DataZone", "Name", "Name_y"}, []string{"A", "Carmyle", "x"})

	joined, report, err := LeftJoin(regions, measures)
	require.NoError(t, err)
	assert.Equal(t, []string{"DataZone", "Name", "Name_y", "Name_y_y"}, joined.Columns())
	assert.Equal(t, map[string]string{"Name": "Name_y", "Name_y": "Name_y_y"}, report.Renamed)
}

func TestJoin(t *testing.T) {
	regions, measures := fiveZones(t)

	m, report, err := Join(regions, measures)
	require.NoError(t, err)
	assert.Equal(t, 5, m.Len())
	assert.Equal(t, 5, report.Matched)
}

func TestJoin_MissingOperands(t *testing.T) {
	regions, measures := fiveZones(t)

	_, _, err := Join(nil, measures)
	assert.True(t, model.IsKind(err, model.OrderViolation))

	_, _, err = Join(regions, nil)
	assert.Error(t, err)
}

func TestAsMap(t *testing.T) {
	regions, measures := fiveZones(t)

	m, err := AsMap(regions)
	require.NoError(t, err)
	assert.Same(t, regions, m)

	_, err = AsMap(measures)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.OrderViolation))
	assert.Contains(t, err.Error(), "left join operand")

	_, err = AsMap(nil)
	assert.True(t, model.IsKind(err, model.OrderViolation))

	var typedNil *model.GeoFrame
	_, err = AsMap(typedNil)
	assert.True(t, model.IsKind(err, model.OrderViolation))
}
