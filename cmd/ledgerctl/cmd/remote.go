package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bitget-webhook-bot/internal/auth"

	"github.com/spf13/cobra"
)

var tradesLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running bot's ledger and exchange state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAPI(cmd, http.MethodGet, "/status", false)
	},
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List recent closed trades",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAPI(cmd, http.MethodGet, fmt.Sprintf("/api/trades?limit=%d", tradesLimit), false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Clear an emergency stop on the running bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAPI(cmd, http.MethodPost, "/api/resume", true)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Recreate the account on the running bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAPI(cmd, http.MethodPost, "/api/reset", true)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tradesCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(resetCmd)

	tradesCmd.Flags().IntVarP(&tradesLimit, "limit", "n", 20, "number of trades")
}

func callAPI(cmd *cobra.Command, method, path string, admin bool) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(serverURL, "/")+path, nil)
	if err != nil {
		return err
	}
	if admin {
		token, err := mintToken(auth.RoleAdmin)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return nil
}
