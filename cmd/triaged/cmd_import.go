package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muzzaleeni/qwazi/internal/legacy"
)

var importFlags struct {
	cases   string
	changes string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import legacy JSONL cases and changes into an empty store",
	RunE:  runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.cases, "cases", "", "legacy cases JSONL file")
	f.StringVar(&importFlags.changes, "changes", "", "legacy changes JSONL file")
	importCmd.MarkFlagsOneRequired("cases", "changes")
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg, cmd.ErrOrStderr())

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	res, err := legacy.NewImporter(db, log).ImportFiles(cmd.Context(), importFlags.cases, importFlags.changes)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d cases, %d changes (%d skipped)\n",
		res.ImportedCases, res.ImportedChanges, res.Skipped)
	return nil
}
