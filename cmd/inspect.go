package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/choropleth/internal/pipeline"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Run the pipeline and report join coverage without rendering",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runPipeline(cmd.Context(), cfg, "inspect", false)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if inspectJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return eris.Wrap(err, "inspect: encode result")
			}
			return nil
		}
		fmt.Fprint(out, pipeline.FormatReport(res))
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the run result as JSON")
	rootCmd.AddCommand(inspectCmd)
}
