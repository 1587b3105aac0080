package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/config"
	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/render"
)

var (
	renderColumn  string
	renderOutput  string
	renderPalette string
	renderTitle   string
	renderHTML    string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a choropleth map",
}

var renderStaticCmd = &cobra.Command{
	Use:   "static",
	Short: "Render a static SVG choropleth",
	RunE: func(cmd *cobra.Command, args []string) error {
		setIf(&cfg.Static.Column, renderColumn)
		setIf(&cfg.Static.Output, renderOutput)
		setIf(&cfg.Static.Palette, renderPalette)
		setIf(&cfg.Static.Title, renderTitle)
		return renderStatic(cmd, cfg, renderHTML)
	},
}

var renderInteractiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Render an interactive Leaflet choropleth with toggleable layers",
	RunE: func(cmd *cobra.Command, args []string) error {
		setIf(&cfg.Interactive.Output, renderOutput)
		setIf(&cfg.Interactive.Title, renderTitle)
		return renderInteractive(cmd, cfg)
	},
}

// renderStatic writes the SVG map and, when htmlOut is set, the same map as a
// single-layer interactive page with hover tooltips.
func renderStatic(cmd *cobra.Command, c *config.Config, htmlOut string) error {
	ctx := cmd.Context()
	res, err := runPipeline(ctx, c, "static", htmlOut != "")
	if err != nil {
		return err
	}

	s, err := render.Static(res.Map, staticOptions(c.Static))
	if err != nil {
		return stageError(model.AtStage(model.StageRender, err))
	}
	if err := render.WriteFile(c.Static.Output, s.Node()); err != nil {
		return stageError(model.AtStage(model.StageRender, err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d regions)\n", c.Static.Output, res.Map.Len())

	if htmlOut == "" {
		return nil
	}
	opts := interactiveOptions(c, c.Basemap.URL)
	opts.Tooltip = nil
	opts.BorderColor = ""
	opts.NAColor = ""
	im, err := s.Interactive(render.TooltipOptions{Columns: c.Interactive.Tooltip, InteractiveOptions: opts})
	if err != nil {
		return stageError(model.AtStage(model.StageRender, err))
	}
	if err := render.WriteFile(htmlOut, im.Node()); err != nil {
		return stageError(model.AtStage(model.StageRender, err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", htmlOut)
	return nil
}

func renderInteractive(cmd *cobra.Command, c *config.Config) error {
	ctx := cmd.Context()
	res, err := runPipeline(ctx, c, "interactive", true)
	if err != nil {
		return err
	}

	im, err := render.Interactive(res.Map, layerSpecs(c.Interactive.Layers), interactiveOptions(c, c.Basemap.URL))
	if err != nil {
		return stageError(model.AtStage(model.StageRender, err))
	}
	if err := render.WriteFile(c.Interactive.Output, im.Node()); err != nil {
		return stageError(model.AtStage(model.StageRender, err))
	}

	zap.L().Info("interactive map written",
		zap.String("path", c.Interactive.Output),
		zap.Strings("groups", im.Toggle.Groups()),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d regions, %d layers)\n", c.Interactive.Output, res.Map.Len(), len(im.Layers))
	return nil
}

func init() {
	renderCmd.PersistentFlags().StringVar(&renderOutput, "output", "", "output file (default from config)")
	renderCmd.PersistentFlags().StringVar(&renderTitle, "title", "", "map title (default from config)")
	renderStaticCmd.Flags().StringVar(&renderColumn, "column", "", "measurement column (default from config)")
	renderStaticCmd.Flags().StringVar(&renderPalette, "palette", "", "color scheme (default from config)")
	renderStaticCmd.Flags().StringVar(&renderHTML, "html", "", "also write the map as an interactive page with tooltips")

	renderCmd.AddCommand(renderStaticCmd, renderInteractiveCmd)
	rootCmd.AddCommand(renderCmd)
}
