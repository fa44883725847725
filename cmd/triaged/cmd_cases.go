package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listLimit int

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List the most recent cases",
	RunE:  runCases,
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List the most recent change ledger entries",
	RunE:  runChanges,
}

var verifyLedgerCmd = &cobra.Command{
	Use:   "verify-ledger",
	Short: "Recompute the change ledger hash chain",
	RunE:  runVerifyLedger,
}

func init() {
	casesCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum entries (0 uses the configured default)")
	changesCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum entries (0 uses the configured default)")
}

func runCases(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	recs, err := newCaseStore(db, cfg, newLogger(cfg, cmd.ErrOrStderr())).GetRecent(cmd.Context(), listLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), recs)
}

func runChanges(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	events, err := newCaseStore(db, cfg, newLogger(cfg, cmd.ErrOrStderr())).RecentChanges(cmd.Context(), listLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), events)
}

func runVerifyLedger(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := newCaseStore(db, cfg, newLogger(cfg, cmd.ErrOrStderr())).VerifyLedger(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ledger intact: %d entries verified\n", n)
	return nil
}
