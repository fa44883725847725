// triaged is the perinatal triage service and its operator CLI.
//
// Usage:
//
//	triaged serve [--config triage.yaml]
//	triaged evaluate --input answers.json
//	triaged import --cases cases.jsonl --changes changes.jsonl
//	triaged cases --limit 20
//	triaged changes --limit 20
//	triaged verify-ledger
//	triaged vignettes --file vignettes.yaml
//	triaged token --subject midwife-7
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "triaged",
	Short: "Perinatal safety-screening triage service",
	Long: "triaged evaluates postnatal screening questionnaires into EMERGENCY, URGENT\n" +
		"or ROUTINE decisions and keeps an auditable record of every case.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (YAML, JSON or TOML); defaults to $TRIAGE_CONFIG or ./triage.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(verifyLedgerCmd)
	rootCmd.AddCommand(vignettesCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "triaged %s (commit=%s, built=%s)\n", version, commit, date)
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}
