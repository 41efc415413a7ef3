package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/ledger"
	"bitget-webhook-bot/internal/store"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var snapshotFile string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Read or repair the ledger snapshot file",
	Long: `Work on the persisted ledger snapshot without a running bot.

Subcommands:
  inspect - Print the snapshot with derived status
  resume  - Clear an emergency stop in the snapshot
  reset   - Recreate the account at the current starting balance

Examples:
  ledgerctl snapshot inspect --file data/ledger.json
  ledgerctl snapshot resume`,
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the snapshot with derived status",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotInspect,
}

var snapshotResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Clear an emergency stop in the snapshot (bot must be stopped)",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotResume,
}

var snapshotResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Recreate the account in the snapshot (bot must be stopped)",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotReset,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
	snapshotCmd.AddCommand(snapshotResumeCmd)
	snapshotCmd.AddCommand(snapshotResetCmd)

	snapshotCmd.PersistentFlags().StringVarP(&snapshotFile, "file", "f", "", "snapshot path (default from config)")
}

func snapshotPath() (string, error) {
	if snapshotFile != "" {
		return snapshotFile, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.PersistenceConfig.Path, nil
}

// openLedger loads the snapshot into a ledger with no exchange attached
func openLedger(ctx context.Context) (*ledger.Ledger, *store.FileStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	path := snapshotFile
	if path == "" {
		path = cfg.PersistenceConfig.Path
	}
	fs, err := store.NewFileStore(path)
	if err != nil {
		return nil, nil, err
	}
	book := ledger.New(cfg.Ledger(), fs, nil, events.NewSyncEventBus(), zerolog.Nop())
	if err := book.Load(ctx); err != nil {
		return nil, nil, err
	}
	return book, fs, nil
}

func runSnapshotInspect(cmd *cobra.Command, args []string) error {
	path, err := snapshotPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := store.Decode(data)
	if err != nil {
		return err
	}
	return printJSON(cmd, snap)
}

func runSnapshotResume(cmd *cobra.Command, args []string) error {
	book, fs, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	if err := book.Resume(cmd.Context()); err != nil {
		if errors.Is(err, ledger.ErrNotPaused) {
			fmt.Fprintln(cmd.OutOrStdout(), "Trading is not paused, nothing to do")
			return nil
		}
		return err
	}
	if err := fs.Save(cmd.Context(), book.State()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Trading resumed in %s, balance %s\n", fs.Path(), book.Account().CurrentBalance)
	return nil
}

func runSnapshotReset(cmd *cobra.Command, args []string) error {
	book, fs, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	if err := book.Reset(cmd.Context()); err != nil {
		return err
	}
	if err := fs.Save(cmd.Context(), book.State()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ledger reset in %s, balance %s\n", fs.Path(), book.Account().CurrentBalance)
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
