package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/config"
	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/store"
)

var (
	exportWGS84 bool
	exportTable string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the joined map table to SQLite or PostGIS",
	RunE: func(cmd *cobra.Command, args []string) error {
		setIf(&cfg.Export.Table, exportTable)
		return runExport(cmd, cfg, exportWGS84)
	},
}

func runExport(cmd *cobra.Command, c *config.Config, wgs84 bool) error {
	ctx := cmd.Context()
	res, err := runPipeline(ctx, c, "export", wgs84)
	if err != nil {
		return err
	}

	exp, err := store.New(ctx, c.Export)
	if err != nil {
		return stageError(model.AtStage(model.StageExport, err))
	}
	defer func() {
		if err := exp.Close(); err != nil {
			zap.L().Warn("close exporter", zap.Error(err))
		}
	}()

	n, err := exp.Export(ctx, res.Map, c.Export.Table)
	if err != nil {
		return stageError(model.AtStage(model.StageExport, err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s (%s)\n", n, c.Export.Table, c.Export.Driver)
	return nil
}

func init() {
	exportCmd.Flags().BoolVar(&exportWGS84, "wgs84", false, "reproject geometries to WGS 84 before export")
	exportCmd.Flags().StringVar(&exportTable, "table", "", "destination table (default from config)")
	rootCmd.AddCommand(exportCmd)
}
