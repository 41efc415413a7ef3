package cmd

import (
	"fmt"

	"bitget-webhook-bot/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operator tool for the Bitget webhook bot",
	Long: `ledgerctl inspects and repairs the synthetic ledger and talks to a
running bot.

Offline commands read the snapshot file directly and must not be used while
the bot is running. Online commands call the bot's HTTP API with a token
minted from the configured JWT secret.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional
		_ = godotenv.Load()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "bot API base URL")
}

func loadConfig() (*config.Config, error) {
	load := config.Load
	if configPath != "" {
		load = func() (*config.Config, error) { return config.LoadFrom(configPath) }
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
