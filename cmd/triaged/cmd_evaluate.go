package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/muzzaleeni/qwazi/internal/domain"
	"github.com/muzzaleeni/qwazi/internal/triage"
)

var evaluateFlags struct {
	input string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one questionnaire (JSON) without storing it",
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVarP(&evaluateFlags.input, "input", "i", "-", "questionnaire JSON file, - for stdin")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rs, err := loadRules(cfg)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	var r io.Reader = cmd.InOrStdin()
	if evaluateFlags.input != "-" {
		f, err := os.Open(evaluateFlags.input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var in domain.TriageInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return domain.NewError(domain.ErrInvalidInput, fmt.Sprintf("decode questionnaire: %v", err))
	}
	return printJSON(cmd.OutOrStdout(), triage.Evaluate(&in, rs))
}
