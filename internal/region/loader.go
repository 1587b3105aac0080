// Package region loads areal-unit boundaries from ESRI shapefiles into a GeoFrame.
package region

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/crs"
	"github.com/sells-group/choropleth/internal/model"
)

// Options configures a boundary load.
type Options struct {
	// Path is a .shp file, a directory holding one shapefile set, a .zip archive, or an
	// http(s) URL of a .zip archive.
	Path string
	// IDColumn names the DBF field holding the region identifier. Matched case-insensitively.
	IDColumn string
	// Columns limits the attributes kept alongside the identifier. Empty keeps every field.
	Columns []string
	// CRS overrides the .prj sidecar, e.g. "EPSG:27700".
	CRS     string
	TempDir string
	Client  *http.Client
}

// Load reads a shapefile set into a region table. Missing linked files, a missing
// identifier column and duplicate identifiers are reported as model.LoadError.
func Load(ctx context.Context, opts Options) (*model.GeoFrame, error) {
	if opts.Path == "" {
		return nil, model.Errorf(model.LoadError, "region: no boundary path configured")
	}
	if opts.IDColumn == "" {
		return nil, model.Errorf(model.LoadError, "region: no identifier column configured")
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "choropleth")
	}

	shpPath, err := resolve(ctx, opts.Path, tempDir, opts.Client)
	if err != nil {
		return nil, model.NewError(model.LoadError, err)
	}
	shpPath, err = linkShapefile(shpPath, tempDir)
	if err != nil {
		return nil, model.NewError(model.LoadError, err)
	}

	ref, err := referenceSystem(shpPath, opts.CRS)
	if err != nil {
		return nil, model.NewError(model.LoadError, err)
	}

	frame, err := readShapefile(shpPath, opts, ref)
	if err != nil {
		return nil, model.NewError(model.LoadError, err)
	}

	zap.L().Info("region: boundaries loaded",
		zap.String("path", shpPath),
		zap.Int("regions", frame.Len()),
		zap.String("crs", ref.String()),
	)
	return frame, nil
}

// linkedExts are the sidecar files read alongside the .shp; .prj is optional.
var linkedExts = []string{".shp", ".shx", ".dbf", ".prj"}

// linkShapefile verifies the .shx index and .dbf attribute table sit next to the .shp,
// matching extensions case-insensitively. The shapefile reader only opens lower-case
// extensions, so a set named otherwise is copied under lower-case names into tempDir
// and the copy's .shp path is returned.
func linkShapefile(shpPath, tempDir string) (string, error) {
	dir := filepath.Dir(shpPath)
	base := strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "region: read shapefile directory")
	}
	found := make(map[string]string, len(linkedExts))
	for _, e := range entries {
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if e.IsDir() || !strings.EqualFold(strings.TrimSuffix(name, filepath.Ext(name)), base) {
			continue
		}
		if prev, ok := found[ext]; !ok || name == base+ext && prev != name {
			found[ext] = name
		}
	}

	var missing []string
	for _, ext := range []string{".shx", ".dbf"} {
		if _, ok := found[ext]; !ok {
			missing = append(missing, base+ext)
		}
	}
	if len(missing) > 0 {
		return "", eris.Errorf("region: missing linked files %s", strings.Join(missing, ", "))
	}

	canonical := true
	for ext, name := range found {
		if name != base+ext {
			canonical = false
		}
	}
	if canonical {
		return shpPath, nil
	}

	linkDir := filepath.Join(tempDir, "linked", base)
	if err := os.MkdirAll(linkDir, 0o755); err != nil {
		return "", eris.Wrap(err, "region: create link dir")
	}
	for _, ext := range linkedExts {
		name, ok := found[ext]
		if !ok {
			continue
		}
		if err := copyFile(filepath.Join(dir, name), filepath.Join(linkDir, base+ext)); err != nil {
			return "", err
		}
	}
	zap.L().Debug("region: normalised shapefile extensions", zap.String("path", shpPath), zap.String("dir", linkDir))
	return filepath.Join(linkDir, base+".shp"), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "region: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "region: create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "region: copy %s", src)
	}
	return eris.Wrapf(out.Close(), "region: close %s", dst)
}

// referenceSystem applies the configured override, else the .prj sidecar. A shapefile
// without either has an unknown CRS.
func referenceSystem(shpPath, override string) (model.CRS, error) {
	if override != "" {
		c, err := crs.ParseCode(override)
		if err != nil {
			return model.CRS{}, eris.Wrap(err, "region: boundary.crs")
		}
		return c, nil
	}

	prj := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	data, err := os.ReadFile(prj)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Warn("region: no .prj sidecar, CRS unknown", zap.String("path", shpPath))
			return model.CRS{}, nil
		}
		return model.CRS{}, eris.Wrap(err, "region: read .prj")
	}

	c, err := crs.ParseWKT(string(data))
	if err != nil {
		zap.L().Warn("region: unreadable .prj, CRS unknown", zap.String("path", prj), zap.Error(err))
		return model.CRS{}, nil
	}
	return c, nil
}

func readShapefile(shpPath string, opts Options, ref model.CRS) (*model.GeoFrame, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	if !isPolygonType(reader.GeometryType) {
		return nil, eris.Errorf("region: %s holds shape type %d, want polygons", shpPath, reader.GeometryType)
	}

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	names := make([]string, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		names[i] = name
		fieldIdx[strings.ToLower(name)] = i
	}

	idIdx, ok := fieldIdx[strings.ToLower(opts.IDColumn)]
	if !ok {
		return nil, eris.Errorf("region: identifier column %q not in %v", opts.IDColumn, names)
	}

	keep, err := selectFields(names, fieldIdx, idIdx, opts.Columns)
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(keep))
	for i, idx := range keep {
		columns[i] = names[idx]
	}
	columns[0] = opts.IDColumn

	var (
		rows    []model.Row
		geoms   []geom.T
		skipped int
	)
	for reader.Next() {
		_, shape := reader.Shape()
		g := toGeometry(shape, ref.EPSG)
		if g == nil {
			skipped++
			continue
		}

		row := make(model.Row, len(keep))
		for i, idx := range keep {
			row[i] = model.ParseValue(reader.Attribute(idx))
		}
		// Identifiers stay text even when they look numeric, so "01" keeps its zero.
		row[0] = model.String(strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00")))
		if row[0].Text() == "" {
			skipped++
			continue
		}

		rows = append(rows, row)
		geoms = append(geoms, g)
	}

	if skipped > 0 {
		zap.L().Warn("region: skipped shapefile records without boundary or identifier",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	frame, err := model.NewFrame(opts.IDColumn, columns, rows)
	if err != nil {
		return nil, eris.Wrap(err, "region: build table")
	}
	return model.NewGeoFrame(frame, geoms, ref)
}

// selectFields returns the DBF field positions to keep, identifier first.
func selectFields(names []string, fieldIdx map[string]int, idIdx int, want []string) ([]int, error) {
	keep := []int{idIdx}
	if len(want) == 0 {
		for i := range names {
			if i != idIdx {
				keep = append(keep, i)
			}
		}
		return keep, nil
	}

	for _, w := range want {
		idx, ok := fieldIdx[strings.ToLower(w)]
		if !ok {
			return nil, eris.Errorf("region: attribute column %q not in %v", w, names)
		}
		if idx != idIdx {
			keep = append(keep, idx)
		}
	}
	return keep, nil
}
