package cmd

import (
	"fmt"

	"bitget-webhook-bot/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configSampleCmd = &cobra.Command{
	Use:   "sample <file>",
	Short: "Write a sample config (format from the .yaml or .json extension)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.GenerateSampleConfig(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sample config written to %s\n", args[0])
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %s x%d, dry_run=%v\n",
			cfg.ExchangeConfig.Symbol, cfg.ExchangeConfig.Leverage, cfg.ExchangeConfig.DryRun)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSampleCmd)
	configCmd.AddCommand(configCheckCmd)
}
