package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/choropleth/internal/model"
)

// maxListedKeys caps how many unmatched or duplicate keys a report prints.
const maxListedKeys = 10

// FormatReport generates a human-readable summary of a run.
func FormatReport(res *Result) string {
	var b strings.Builder

	b.WriteString("# Choropleth Run\n")
	if res.Map != nil {
		fmt.Fprintf(&b, "CRS: %s\n", res.Map.CRS())
		bb := res.Map.Bounds()
		if !bb.IsEmpty() {
			fmt.Fprintf(&b, "Bounds: %.6f %.6f %.6f %.6f\n", bb.MinX, bb.MinY, bb.MaxX, bb.MaxY)
		}
	}
	b.WriteString("\n")

	// Summary.
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Regions loaded: %d\n", res.Regions)
	fmt.Fprintf(&b, "- Measurement rows: %d\n", res.Measures)
	fmt.Fprintf(&b, "- Matched: %d of %d\n", res.Report.Matched, res.Report.LeftRows)
	if res.Map != nil {
		fmt.Fprintf(&b, "- Map rows: %d\n", res.Map.Len())
	}
	b.WriteString("\n")

	// Stages.
	b.WriteString("## Stages\n")
	for _, s := range res.Stages {
		fmt.Fprintf(&b, "- %s: %d rows (%dms)\n", s.Name, s.Rows, s.Duration.Milliseconds())
	}
	b.WriteString("\n")

	// Join diagnostics.
	b.WriteString("## Join\n")
	fmt.Fprintf(&b, "- Key: %s = %s\n", res.Report.LeftKey, res.Report.RightKey)
	writeKeys(&b, "Unmatched regions", res.Report.UnmatchedKeys)
	writeKeys(&b, "Duplicate measurement keys", res.Report.DuplicateKeys)
	if len(res.Report.Renamed) > 0 {
		names := make([]string, 0, len(res.Report.Renamed))
		for k := range res.Report.Renamed {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintf(&b, "- Renamed: %s -> %s\n", k, res.Report.Renamed[k])
		}
	}
	for _, w := range res.Report.Warnings {
		fmt.Fprintf(&b, "- Warning (%s): %v\n", w.Kind, w.Err)
	}
	b.WriteString("\n")

	// Columns with their observed ranges.
	if res.Map != nil {
		b.WriteString("## Columns\n")
		for _, c := range res.Map.Columns() {
			values, _ := res.Map.Column(c)
			fmt.Fprintf(&b, "- %s: %s\n", c, describe(values))
		}
	}

	return b.String()
}

func writeKeys(b *strings.Builder, label string, keys []string) {
	if len(keys) == 0 {
		return
	}
	shown := keys
	if len(shown) > maxListedKeys {
		shown = shown[:maxListedKeys]
	}
	fmt.Fprintf(b, "- %s: %d (%s", label, len(keys), strings.Join(shown, ", "))
	if len(keys) > len(shown) {
		fmt.Fprintf(b, ", +%d more", len(keys)-len(shown))
	}
	b.WriteString(")\n")
}

// describe summarises a column: numeric range, text cardinality and null count.
func describe(values []model.Value) string {
	var (
		nulls, nums int
		lo, hi      float64
		text        = map[string]struct{}{}
	)
	for _, v := range values {
		switch v.Kind() {
		case model.KindNull:
			nulls++
		case model.KindNumber:
			f, _ := v.Float()
			if nums == 0 || f < lo {
				lo = f
			}
			if nums == 0 || f > hi {
				hi = f
			}
			nums++
		default:
			text[v.Text()] = struct{}{}
		}
	}

	var parts []string
	if nums > 0 {
		parts = append(parts, fmt.Sprintf("numeric %g..%g", lo, hi))
	}
	if len(text) > 0 {
		parts = append(parts, fmt.Sprintf("%d distinct text values", len(text)))
	}
	if nulls > 0 {
		parts = append(parts, fmt.Sprintf("%d null", nulls))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}
