package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalgate/vitalgate/internal/domain"
	"github.com/vitalgate/vitalgate/internal/vitals"
)

// ─── One-shot vitals commands ───────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txAddCmd)

	txAddCmd.Flags().Float64("amount", 0, "Signed amount (>0 credit, <0 debit)")
	txAddCmd.Flags().String("pool", "", "Intent pool tag (mana|stamina|health|essence)")
	txAddCmd.Flags().String("status", domain.StatusPending, "Transaction status (pending|confirmed)")
	txAddCmd.Flags().String("credit-mode", "", "Per-transaction credit mode override")
	txAddCmd.Flags().String("ghost-expiry", "", "Auto-confirm deadline (duration from now, e.g. 48h)")
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute PLAYER_ID",
	Short: "Recompute and print a player's vitals snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.Engine().Recompute(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"snapshot": res.Snapshot,
			"pending":  res.Pending,
			"branch":   res.Source.Branch,
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show PLAYER_ID",
	Short: "Print a player's last persisted snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		doc, err := d.Store().Get(context.Background(), vitals.SnapshotPath(args[0]))
		if err != nil {
			return err
		}
		if doc == nil {
			return domain.ErrSnapshotNotFound
		}
		return printJSON(doc)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep PLAYER_ID",
	Short: "Lock ghost-expired pending transactions and recompute",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		locked, res, err := d.Sweeper().Run(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("locked %d transaction(s)\n", locked)
		return printJSON(res.Snapshot)
	},
}

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Manage manual transactions",
}

var txAddCmd = &cobra.Command{
	Use:   "add PLAYER_ID",
	Short: "Add a manual transaction to the unverified branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, _ := cmd.Flags().GetFloat64("amount")
		pool, _ := cmd.Flags().GetString("pool")
		status, _ := cmd.Flags().GetString("status")
		creditMode, _ := cmd.Flags().GetString("credit-mode")
		ghost, _ := cmd.Flags().GetString("ghost-expiry")

		t := domain.Transaction{
			Amount:             amount,
			Status:             status,
			OccurredAtMs:       time.Now().UnixMilli(),
			CreditModeOverride: creditMode,
		}
		if pool != "" {
			t.Tag = &domain.PoolTag{Pool: pool}
		}
		if ghost != "" {
			dur, err := time.ParseDuration(ghost)
			if err != nil {
				return fmt.Errorf("parse --ghost-expiry: %w", err)
			}
			t.GhostExpiryMs = time.Now().Add(dur).UnixMilli()
		}

		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		branch := vitals.TxBranchPath(args[0], vitals.BranchUnverified)
		stored, err := d.Store().PutTransaction(context.Background(), branch, t)
		if err != nil {
			return err
		}
		fmt.Println("created transaction", stored.ID,
			"amount", strconv.FormatFloat(stored.Amount, 'f', -1, 64))
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
