package cmd

import (
	"fmt"

	"bitget-webhook-bot/config"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/vault"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage exchange credentials in Vault",
}

var vaultPutCmd = &cobra.Command{
	Use:   "put-credentials",
	Short: "Store BITGET_API_KEY, BITGET_SECRET_KEY and BITGET_PASSPHRASE in Vault",
	Args:  cobra.NoArgs,
	RunE:  runVaultPut,
}

var vaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify Vault is reachable and holds complete credentials",
	Args:  cobra.NoArgs,
	RunE:  runVaultCheck,
}

func init() {
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultPutCmd)
	vaultCmd.AddCommand(vaultCheckCmd)
}

func vaultClient() (*vault.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.VaultConfig.Enabled {
		return nil, nil, vault.ErrDisabled
	}
	c, err := vault.NewClient(cfg.VaultConfig, zerolog.Nop())
	return c, cfg, err
}

func runVaultPut(cmd *cobra.Command, args []string) error {
	c, cfg, err := vaultClient()
	if err != nil {
		return err
	}
	creds := exchange.Credentials{
		APIKey:     cfg.ExchangeConfig.APIKey,
		SecretKey:  cfg.ExchangeConfig.SecretKey,
		Passphrase: cfg.ExchangeConfig.Passphrase,
	}
	if err := c.StoreCredentials(cmd.Context(), creds); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Credentials stored")
	return nil
}

func runVaultCheck(cmd *cobra.Command, args []string) error {
	c, _, err := vaultClient()
	if err != nil {
		return err
	}
	if err := c.Health(cmd.Context()); err != nil {
		return err
	}
	if _, err := c.GetCredentials(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Vault OK, credentials complete")
	return nil
}
