package cli

import (
	"github.com/spf13/cobra"

	"mortgage-rate-alerts/internal/app"
)

var (
	exportPNGPath  string
	exportCSVPath  string
	exportPageSize int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rate alerts as CSV and/or a PNG chart per loan type",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:  exportPNGPath,
			CSVPath:  exportCSVPath,
			PageSize: exportPageSize,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportPageSize, "page-size", 0, "Rows fetched per query (defaults to config)")
}
