// Package pipeline joins region boundaries with measurement tables, filters the result
// to a region of interest and drives the load -> join -> filter -> reproject run.
package pipeline

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/model"
)

// GeometryColumn names the text column a right-hand geometry is reduced to.
const GeometryColumn = "geometry"

// collisionSuffix is appended to right-hand columns whose name is already taken.
const collisionSuffix = "_y"

// JoinReport summarises how two tables lined up.
type JoinReport struct {
	LeftKey       string            `json:"left_key"`
	RightKey      string            `json:"right_key"`
	LeftRows      int               `json:"left_rows"`
	RightRows     int               `json:"right_rows"`
	Matched       int               `json:"matched"`
	UnmatchedKeys []string          `json:"unmatched_keys,omitempty"`
	DuplicateKeys []string          `json:"duplicate_keys,omitempty"`
	Renamed       map[string]string `json:"renamed,omitempty"`
	Warnings      []*model.Error    `json:"-"`
}

// HasWarning reports whether the join raised a warning of the given kind.
func (r JoinReport) HasWarning(kind model.ErrorKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// LeftJoin keeps every row of left, in order, and appends the non-key columns of the
// first right row sharing its key. Unmatched rows get nulls.
//
// The result keeps left's geometry typing: a GeoFrame on the left yields a GeoFrame,
// a plain Frame yields a plain Frame. A right-hand geometry is never carried as a
// geometry; it is reduced to an inert WKT text column.
func LeftJoin(left, right model.Table) (model.Table, JoinReport, error) {
	report := JoinReport{
		LeftKey:   left.KeyColumn(),
		RightKey:  right.KeyColumn(),
		LeftRows:  left.Len(),
		RightRows: right.Len(),
	}

	first, dups := indexKeys(right)
	report.DuplicateKeys = dups

	rightGeo, _ := right.(*model.GeoFrame)
	rightKeyIdx := right.ColumnIndex(right.KeyColumn())
	rightCols := right.Columns()

	columns := left.Columns()
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[c] = true
	}

	var carry []int
	for i, c := range rightCols {
		if i == rightKeyIdx {
			continue
		}
		carry = append(carry, i)
		columns = append(columns, uniqueName(c, taken, &report))
	}
	if rightGeo != nil {
		columns = append(columns, uniqueName(GeometryColumn, taken, &report))
	}

	rows := make([]model.Row, left.Len())
	width := len(columns)
	for i := 0; i < left.Len(); i++ {
		row := make(model.Row, 0, width)
		row = append(row, left.Row(i)...)

		j, ok := first[left.Key(i)]
		if ok {
			report.Matched++
			src := right.Row(j)
			for _, c := range carry {
				row = append(row, src[c])
			}
			if rightGeo != nil {
				row = append(row, inertGeometry(rightGeo.Geometry(j)))
			}
		} else {
			report.UnmatchedKeys = append(report.UnmatchedKeys, left.Key(i))
			for len(row) < width {
				row = append(row, model.Null())
			}
		}
		rows[i] = row
	}

	frame, err := model.NewFrame(left.KeyColumn(), columns, rows)
	if err != nil {
		return nil, report, eris.Wrap(err, "pipeline: build joined frame")
	}

	report.Warnings = joinWarnings(report)

	leftGeo, ok := left.(*model.GeoFrame)
	if !ok {
		return frame, report, nil
	}

	geoms := make([]geom.T, left.Len())
	for i := range geoms {
		geoms[i] = leftGeo.Geometry(i)
	}
	joined, err := model.NewGeoFrame(frame, geoms, leftGeo.CRS())
	if err != nil {
		return nil, report, eris.Wrap(err, "pipeline: attach geometries")
	}
	return joined, report, nil
}

// Join is the typed entry point: regions on the left, measurements on the right. The
// result is checked to still be spatial before it is handed to a renderer.
func Join(regions *model.GeoFrame, measures *model.Frame) (*model.GeoFrame, JoinReport, error) {
	if regions == nil {
		return nil, JoinReport{}, model.Errorf(model.OrderViolation, "pipeline: join needs a region table as its left operand")
	}
	if measures == nil {
		return nil, JoinReport{}, model.Errorf(model.LoadError, "pipeline: join needs a measurement table")
	}

	joined, report, err := LeftJoin(regions, measures)
	if err != nil {
		return nil, report, err
	}

	m, err := AsMap(joined)
	if err != nil {
		return nil, report, err
	}

	for _, w := range report.Warnings {
		zap.L().Warn("pipeline: join warning",
			zap.String("kind", string(w.Kind)),
			zap.Error(w.Err),
		)
	}
	zap.L().Info("pipeline: joined",
		zap.Int("regions", report.LeftRows),
		zap.Int("measurements", report.RightRows),
		zap.Int("matched", report.Matched),
	)
	return m, report, nil
}

// AsMap narrows an untyped table to a map table. Tables without geometry, such as the
// result of joining with a measurement table on the left, are an OrderViolation.
func AsMap(t model.Table) (*model.GeoFrame, error) {
	if g, ok := t.(*model.GeoFrame); ok {
		if g == nil {
			return nil, model.Errorf(model.OrderViolation, "pipeline: no table to render")
		}
		return g, nil
	}
	if t == nil {
		return nil, model.Errorf(model.OrderViolation, "pipeline: no table to render")
	}
	return nil, model.Errorf(model.OrderViolation,
		"pipeline: table keyed by %q has no geometry; the region table must be the left join operand",
		t.KeyColumn())
}

// indexKeys maps each key to its first row and lists keys seen more than once.
func indexKeys(t model.Table) (map[string]int, []string) {
	first := make(map[string]int, t.Len())
	dupSet := make(map[string]struct{})
	for i := 0; i < t.Len(); i++ {
		k := t.Key(i)
		if _, seen := first[k]; seen {
			dupSet[k] = struct{}{}
			continue
		}
		first[k] = i
	}

	dups := make([]string, 0, len(dupSet))
	for k := range dupSet {
		dups = append(dups, k)
	}
	sort.Strings(dups)
	return first, dups
}

func uniqueName(name string, taken map[string]bool, report *JoinReport) string {
	out := name
	for taken[out] {
		out += collisionSuffix
	}
	taken[out] = true
	if out != name {
		if report.Renamed == nil {
			report.Renamed = make(map[string]string)
		}
		report.Renamed[name] = out
	}
	return out
}

func inertGeometry(g geom.T) model.Value {
	s, err := wkt.Marshal(g)
	if err != nil {
		return model.Null()
	}
	return model.String(s)
}

func joinWarnings(r JoinReport) []*model.Error {
	var out []*model.Error
	if r.LeftRows > 0 && r.RightRows > 0 && r.Matched == 0 {
		out = append(out, model.Errorf(model.JoinKeyMismatch,
			"no %s key matched a %s key; check the key columns hold the same identifiers", r.LeftKey, r.RightKey))
	}
	if len(r.DuplicateKeys) > 0 {
		out = append(out, model.Errorf(model.DuplicateKey,
			"%d %s keys appear more than once; the first row was used", len(r.DuplicateKeys), r.RightKey))
	}
	for _, w := range out {
		w.Stage = model.StageJoin
	}
	return out
}
