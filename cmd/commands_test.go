package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sells-group/choropleth/internal/config"
	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/model/modeltest"
)

const bngPRJ = `PROJCS["British_National_Grid",GEOGCS["GCS_OSGB_1936",DATUM["D_OSGB_1936",SPHEROID["Airy_1830",6377563.396,299.3249646]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],UNIT["Meter",1.0]]`

func square(x, y, size float64) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
		{X: x, Y: y},
		{X: x, Y: y + size},
		{X: x + size, Y: y + size},
		{X: x + size, Y: y},
		{X: x, Y: y},
	}}))
	return &p
}

// testConfig writes three Glasgow data zones and a measurement CSV missing the third,
// and returns a config able to drive every command.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	shpPath := filepath.Join(dir, "zones.shp")
	w, err := shp.Create(shpPath, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("DataZone", 12)}))
	for i, id := range []string{"S01010001", "S01010002", "S01010003"} {
		w.Write(square(259000+float64(i)*500, 665000, 500))
		require.NoError(t, w.WriteAttribute(i, 0, id))
	}
	modeltest.CloseShapefile(t, w, shpPath)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zones.prj"), []byte(bngPRJ), 0o644))

	csvPath := filepath.Join(dir, "simd.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"Data_Zone,Council_area,SIMD2020v2_Quintile,SIMD2020v2_Decile\n"+
			"S01010001,Glasgow City,1,2\n"+
			"S01010002,Glasgow City,3,5\n"), 0o644))

	c := &config.Config{TempDir: dir}
	c.Boundary.Path = shpPath
	c.Boundary.IDColumn = "DataZone"
	c.Attributes.Path = csvPath
	c.Attributes.KeyColumn = "Data_Zone"
	c.Static.Output = filepath.Join(dir, "map.svg")
	c.Static.Column = "SIMD2020v2_Quintile"
	c.Static.Palette = "viridis"
	c.Static.BorderColor = "#ffffff"
	c.Static.BorderWidth = 0.5
	c.Static.Width = 400
	c.Static.Height = 400
	c.Interactive.Output = filepath.Join(dir, "map.html")
	c.Interactive.Layers = []config.LayerConfig{
		{Column: "SIMD2020v2_Quintile", Name: "Quintile"},
		{Column: "SIMD2020v2_Decile", Name: "Decile", Palette: "magma"},
	}
	c.Basemap.URL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	c.Basemap.Format = "png"
	c.Basemap.MaxZoom = 19
	c.Basemap.CacheSize = 16
	c.Basemap.RateLimit = 100
	c.Basemap.Burst = 10
	c.Server.Port = 8080
	c.Export.Driver = "sqlite"
	c.Export.Path = filepath.Join(dir, "export.db")
	c.Export.Table = "simd"
	return c
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestRenderStatic(t *testing.T) {
	c := testConfig(t)
	cmd, out := testCommand()

	require.NoError(t, renderStatic(cmd, c, ""))
	assert.Contains(t, out.String(), "(3 regions)")

	data, err := os.ReadFile(c.Static.Output)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "<path"))
}

func TestRenderStatic_HTML(t *testing.T) {
	c := testConfig(t)
	cmd, _ := testCommand()
	htmlOut := filepath.Join(c.TempDir, "tooltips.html")

	require.NoError(t, renderStatic(cmd, c, htmlOut))

	data, err := os.ReadFile(htmlOut)
	require.NoError(t, err)
	assert.Contains(t, string(data), "S01010002")
	assert.Contains(t, string(data), "tooltips")
}

func TestRenderStatic_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Static.Column = ""
	cmd, _ := testCommand()

	err := renderStatic(cmd, c, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "static.column is required")
}

func TestRenderStatic_UnknownColumnNamesStage(t *testing.T) {
	c := testConfig(t)
	c.Static.Column = "Nope"
	cmd, _ := testCommand()

	err := renderStatic(cmd, c, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render stage failed")
	_, statErr := os.Stat(c.Static.Output)
	assert.True(t, os.IsNotExist(statErr), "no artifact on failure")
}

func TestRenderInteractive(t *testing.T) {
	c := testConfig(t)
	cmd, out := testCommand()

	require.NoError(t, renderInteractive(cmd, c))
	assert.Contains(t, out.String(), "2 layers")

	data, err := os.ReadFile(c.Interactive.Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Quintile"`)
	assert.Contains(t, string(data), `"Decile"`)
	assert.Contains(t, string(data), "leaflet")
}

func TestRunPipeline_LoadFailureNamesStage(t *testing.T) {
	c := testConfig(t)
	c.Boundary.Path = filepath.Join(c.TempDir, "missing.shp")

	_, err := runPipeline(context.Background(), c, "inspect", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), model.StageBoundaries+" stage failed")
	assert.True(t, model.IsKind(err, model.LoadError))
}

func TestStageError_PassesThroughPlainErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, plain, stageError(plain))
}

func TestExport(t *testing.T) {
	c := testConfig(t)
	cmd, out := testCommand()

	require.NoError(t, runExport(cmd, c, true))
	assert.Contains(t, out.String(), "exported 3 rows to simd (sqlite)")

	db, err := sql.Open("sqlite", c.Export.Path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var srid int
	require.NoError(t, db.QueryRow(`SELECT DISTINCT srid FROM "simd"`).Scan(&srid))
	assert.Equal(t, 4326, srid)
}

func TestExport_UnknownDriver(t *testing.T) {
	c := testConfig(t)
	c.Export.Driver = "oracle"
	cmd, _ := testCommand()

	err := runExport(cmd, c, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export.driver")
}

func TestInspect(t *testing.T) {
	c := testConfig(t)
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev; inspectJSON = false })

	cmd, out := testCommand()
	require.NoError(t, inspectCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "# Choropleth Run")
	assert.Contains(t, out.String(), "S01010003")

	out.Reset()
	inspectJSON = true
	require.NoError(t, inspectCmd.RunE(cmd, nil))
	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.EqualValues(t, 3, got["regions"])
	assert.EqualValues(t, 2, got["measures"])
}

func TestLayerSpecs(t *testing.T) {
	specs := layerSpecs([]config.LayerConfig{{Column: "a", Name: "A", Palette: "magma", Reverse: true, Legend: "topleft"}})
	require.Len(t, specs, 1)
	assert.Equal(t, "a", specs[0].Column)
	assert.Equal(t, "magma", specs[0].Palette)
	assert.True(t, specs[0].Reverse)
	assert.Equal(t, "topleft", specs[0].Legend)
}

func TestStaticOptions(t *testing.T) {
	opts := staticOptions(config.StaticConfig{Column: "q", BorderColumn: "d", BorderPalette: "greys", BorderWidth: 1.5})
	assert.Equal(t, "q", opts.Column)
	assert.Equal(t, "d", opts.Border.Column)
	assert.Equal(t, "greys", opts.Border.Palette)
	assert.Equal(t, 1.5, opts.Border.Width)
}

func TestInteractiveOptions_TileURL(t *testing.T) {
	c := testConfig(t)
	opts := interactiveOptions(c, "/basemap/{z}/{x}/{y}.png")
	assert.Equal(t, "/basemap/{z}/{x}/{y}.png", opts.Tiles.URL)
	assert.Equal(t, 19, opts.Tiles.MaxZoom)
}

func TestSetIf(t *testing.T) {
	v := "keep"
	setIf(&v, "")
	assert.Equal(t, "keep", v)
	setIf(&v, "new")
	assert.Equal(t, "new", v)
}

func newTestSite(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	calls := new(atomic.Int64)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("tile")) //nolint:errcheck
	}))
	t.Cleanup(upstream.Close)

	c := testConfig(t)
	c.Basemap.URL = upstream.URL + "/{z}/{x}/{y}.png"

	s, err := buildSite(context.Background(), c)
	require.NoError(t, err)

	srv := httptest.NewServer(buildRouter(s))
	t.Cleanup(srv.Close)
	return srv, calls
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_Routes(t *testing.T) {
	srv, _ := newTestSite(t)

	resp, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "/basemap/{z}/{x}/{y}.png")

	resp, body = get(t, srv.URL+"/static.svg")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "<svg")

	resp, body = get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestServer_BasemapProxyCaches(t *testing.T) {
	srv, calls := newTestSite(t)

	for range 2 {
		resp, body := get(t, srv.URL+"/basemap/3/2/1.png")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "tile", body)
	}
	assert.Equal(t, int64(1), calls.Load())

	_, body := get(t, srv.URL+"/stats")
	var stats struct {
		Run struct {
			Regions int `json:"regions"`
		} `json:"run"`
		Basemap struct {
			Hits   int64 `json:"hits"`
			Misses int64 `json:"misses"`
		} `json:"basemap"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &stats))
	assert.Equal(t, 3, stats.Run.Regions)
	assert.Equal(t, int64(1), stats.Basemap.Hits)
	assert.Equal(t, int64(1), stats.Basemap.Misses)
}

func TestBuildSite_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Interactive.Layers = nil

	_, err := buildSite(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive.layers")
}

func TestStartServer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- startServer(ctx, http.NotFoundHandler(), 0) }()
	cancel()
	assert.NoError(t, <-done)
}
