package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mev-alerts/internal/app"
	"mev-alerts/internal/config"
	"mev-alerts/internal/logging"
	"mev-alerts/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	pretty    bool
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:          "mevbot",
	Short:        "Notify Telegram subscribers about high-MEV dYdX blocks",
	Version:      version.Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if pretty {
			cfg.Logging.PrettyPrint = true
		}

		logger := logging.NewLogger(cfg.Logging)
		logger.Debug().Str("version", version.Version).Str("environment", cfg.App.Environment).Msg("configuration loaded")
		appHandle = app.NewApp(cfg, logger)
		appHandle.ConfigPath = cfgFile
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human-readable console logs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(subscribersCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
