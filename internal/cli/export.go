package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"mev-alerts/internal/app"
)

var (
	exportThreshold string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export blocks above a threshold in the current window as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := parseThreshold(exportThreshold)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Threshold: threshold,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseThreshold(raw string) (decimal.Decimal, error) {
	threshold, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid --threshold value: %w", err)
	}
	if threshold.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("--threshold cannot be negative")
	}
	return threshold, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportThreshold, "threshold", "0", "Minimum MEV value in USD")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 2000, "Maximum blocks plotted in the chart")
}
