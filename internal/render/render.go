// Package render draws a joined map table as a static SVG choropleth or as an
// interactive Leaflet page with toggleable measurement layers.
package render

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"maragu.dev/gomponents"

	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/palette"
)

// Legend corners, as Leaflet names them.
const (
	TopLeft     = "topleft"
	TopRight    = "topright"
	BottomLeft  = "bottomleft"
	BottomRight = "bottomright"
)

func validCorner(pos string) bool {
	switch pos {
	case TopLeft, TopRight, BottomLeft, BottomRight:
		return true
	}
	return false
}

// Legend describes one palette key drawn next to the map.
type Legend struct {
	Title    string         `json:"title"`
	Column   string         `json:"column"`
	Group    string         `json:"group,omitempty"`
	Position string         `json:"position,omitempty"`
	Ticks    []palette.Tick `json:"ticks"`
	// NAColor is set when some region has no value and is drawn in the NA color.
	NAColor string `json:"na_color,omitempty"`
	// Border marks a legend for outline colors rather than fills.
	Border bool `json:"border,omitempty"`
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// DisplayName turns a column name into a legend title, e.g. "Council_area" -> "Council Area".
func DisplayName(column string) string {
	s := strings.Join(strings.Fields(strings.ReplaceAll(column, "_", " ")), " ")
	return titleCaser.String(s)
}

// resolveColumn finds column in m, exactly or else case-insensitively.
func resolveColumn(m *model.GeoFrame, column string) (string, error) {
	if column == "" {
		return "", eris.New("render: no measurement column configured")
	}
	name, ok := m.LookupColumn(column)
	if !ok {
		return "", eris.Errorf("render: column %q not in %v", column, m.Columns())
	}
	return name, nil
}

// buildLegend keys palette p for column, noting the NA color only when it is used.
func buildLegend(column, title string, p *palette.Palette, values []model.Value) Legend {
	l := Legend{Title: title, Column: column, Ticks: p.Ticks(5)}
	for _, v := range values {
		if _, ok := v.Float(); !ok {
			l.NAColor = p.NAColor()
			break
		}
	}
	return l
}

// WriteFile renders node to path through a temporary file in the same directory, so a
// failed render never leaves a partial artifact behind.
func WriteFile(path string, node gomponents.Node) error {
	var buf bytes.Buffer
	if err := node.Render(&buf); err != nil {
		return eris.Wrap(err, "render: build document")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "render: create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := io.Copy(tmp, &buf); err != nil {
		tmp.Close() //nolint:errcheck
		cleanup()
		return eris.Wrap(err, "render: write temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return eris.Wrap(err, "render: close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return eris.Wrap(err, "render: chmod temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return eris.Wrap(err, "render: move into place")
	}

	zap.L().Info("render: artifact written", zap.String("path", path), zap.Int("bytes", buf.Len()))
	return nil
}
