package cmd

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"bitget-webhook-bot/internal/auth"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
	hashCost  int
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token from the configured JWT secret",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for auth.admin_password_hash",
	Long: `Print a bcrypt hash for auth.admin_password_hash.

The password is read from the first line of stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashPassword,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashPasswordCmd)

	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "operator", "username embedded in the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "token role (admin or viewer)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default from config)")
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
}

func mintToken(role string) (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.AuthConfig.JWTSecret == "" {
		return "", fmt.Errorf("auth.jwt_secret is not set")
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.AuthConfig.AccessTokenDuration
	}
	return auth.NewJWTManager(cfg.AuthConfig.JWTSecret, ttl).
		GenerateAccessToken(auth.OperatorClaims{Username: tokenUser, Role: role})
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenRole != auth.RoleAdmin && tokenRole != auth.RoleViewer {
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	token, err := mintToken(tokenRole)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashPassword(password, hashCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
