package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/model"
)

// Predicate selects rows whose column renders to one of Values.
type Predicate struct {
	Column          string
	Values          []string
	CaseInsensitive bool
}

// Equals matches a single value exactly.
func Equals(column, value string) Predicate {
	return Predicate{Column: column, Values: []string{value}}
}

// In matches any of values exactly.
func In(column string, values ...string) Predicate {
	return Predicate{Column: column, Values: values}
}

func (p Predicate) match(v model.Value) bool {
	if v.IsNull() {
		return false
	}
	s := strings.TrimSpace(v.Text())
	for _, want := range p.Values {
		want = strings.TrimSpace(want)
		if s == want || (p.CaseInsensitive && strings.EqualFold(s, want)) {
			return true
		}
	}
	return false
}

// Filter keeps the rows of m matching p, in their original order. The result is still a
// map table, so filtering twice with the same predicate changes nothing.
func Filter(m *model.GeoFrame, p Predicate) (*model.GeoFrame, error) {
	if m == nil {
		return nil, model.Errorf(model.OrderViolation, "pipeline: filter needs a map table")
	}
	if len(p.Values) == 0 {
		return nil, eris.Errorf("pipeline: filter on %q has no values", p.Column)
	}

	column := p.Column
	if m.ColumnIndex(column) < 0 {
		resolved, ok := m.LookupColumn(column)
		if !ok || !p.CaseInsensitive {
			return nil, eris.Errorf("pipeline: filter column %q not in %v", p.Column, m.Columns())
		}
		column = resolved
	}

	var keep []int
	for i := 0; i < m.Len(); i++ {
		if p.match(m.Value(i, column)) {
			keep = append(keep, i)
		}
	}

	zap.L().Info("pipeline: filtered",
		zap.String("column", column),
		zap.Strings("values", p.Values),
		zap.Int("before", m.Len()),
		zap.Int("after", len(keep)),
	)
	if len(keep) == 0 {
		zap.L().Warn("pipeline: filter matched no regions", zap.String("column", column))
	}
	return m.Subset(keep), nil
}
