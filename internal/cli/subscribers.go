package cli

import (
	"github.com/spf13/cobra"

	"mev-alerts/internal/app"
)

var subscribersActive bool

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "List stored subscriber settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Subscribers(cmd.Context(), cmd.OutOrStdout(), app.SubscribersOptions{
			ActiveOnly: subscribersActive,
		})
	},
}

func init() {
	subscribersCmd.Flags().BoolVar(&subscribersActive, "active", false, "Only show subscribers with notifications enabled")
}
