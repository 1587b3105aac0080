package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/config"
	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/pipeline"
	"github.com/sells-group/choropleth/internal/render"
)

// runPipeline validates c for mode and produces the map table.
func runPipeline(ctx context.Context, c *config.Config, mode string, reproject bool) (*pipeline.Result, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}
	res, err := pipeline.Run(ctx, c, pipeline.Options{Reproject: reproject})
	if err != nil {
		return nil, stageError(err)
	}
	zap.L().Info("pipeline complete",
		zap.Int("regions", res.Regions),
		zap.Int("measures", res.Measures),
		zap.Int("matched", res.Report.Matched),
		zap.Int("rows", res.Map.Len()),
	)
	return res, nil
}

// stageError names the failing stage in the message shown to the user.
func stageError(err error) error {
	if stage := model.StageOf(err); stage != "" {
		return eris.Wrapf(err, "%s stage failed", stage)
	}
	return err
}

func staticOptions(c config.StaticConfig) render.StaticOptions {
	return render.StaticOptions{
		Title:       c.Title,
		Column:      c.Column,
		DisplayName: c.DisplayName,
		Palette:     c.Palette,
		Reverse:     c.Reverse,
		NAColor:     c.NAColor,
		Border: render.BorderOptions{
			Color:   c.BorderColor,
			Column:  c.BorderColumn,
			Palette: c.BorderPalette,
			Width:   c.BorderWidth,
		},
		Width:  c.Width,
		Height: c.Height,
	}
}

func layerSpecs(layers []config.LayerConfig) []render.LayerSpec {
	specs := make([]render.LayerSpec, len(layers))
	for i, l := range layers {
		specs[i] = render.LayerSpec{
			Column:  l.Column,
			Name:    l.Name,
			Palette: l.Palette,
			Reverse: l.Reverse,
			Legend:  l.Legend,
		}
	}
	return specs
}

// interactiveOptions builds page options drawing tiles from tileURL.
func interactiveOptions(c *config.Config, tileURL string) render.InteractiveOptions {
	return render.InteractiveOptions{
		Title: c.Interactive.Title,
		Tiles: render.TileLayer{
			URL:         tileURL,
			Attribution: c.Basemap.Attribution,
			MaxZoom:     c.Basemap.MaxZoom,
		},
		Opacity:     c.Interactive.Opacity,
		BorderColor: c.Interactive.BorderColor,
		BorderWidth: c.Static.BorderWidth,
		NAColor:     c.Interactive.NAColor,
		LeafletJS:   c.Interactive.LeafletURL,
		LeafletCSS:  c.Interactive.LeafletCSS,
		Tooltip:     c.Interactive.Tooltip,
	}
}

// setIf overrides dst with a non-empty flag value.
func setIf(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}
