package cli

import (
	"github.com/spf13/cobra"
)

var runMetricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the notification scheduler and Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("metrics-addr") {
			a.Config.Metrics.ListenAddr = runMetricsAddr
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.listen_addr)")
}
