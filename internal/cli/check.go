package cli

import (
	"github.com/spf13/cobra"

	"mev-alerts/internal/app"
)

var (
	checkThreshold string
	checkChatID    string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate the current block window once and print or send the notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := parseThreshold(checkThreshold)
		if err != nil {
			return err
		}

		return getApp().Check(cmd.Context(), cmd.OutOrStdout(), app.CheckOptions{
			Threshold: threshold,
			ChatID:    checkChatID,
		})
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkThreshold, "threshold", "300", "Minimum MEV value in USD")
	checkCmd.Flags().StringVar(&checkChatID, "chat-id", "", "Send the notification to this Telegram chat instead of printing it")
}
