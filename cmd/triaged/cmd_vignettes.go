package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muzzaleeni/qwazi/internal/vignette"
)

var vignetteFlags struct {
	file    string
	workers int
}

var vignettesCmd = &cobra.Command{
	Use:   "vignettes",
	Short: "Check the rule set against a YAML vignette file",
	RunE:  runVignettes,
}

func init() {
	f := vignettesCmd.Flags()
	f.StringVarP(&vignetteFlags.file, "file", "f", "", "vignette YAML file (required)")
	f.IntVar(&vignetteFlags.workers, "workers", 0, "concurrent evaluations (0 uses the configured value)")
	_ = vignettesCmd.MarkFlagRequired("file")
}

func runVignettes(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rs, err := loadRules(cfg)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	vs, err := vignette.Load(vignetteFlags.file)
	if err != nil {
		return err
	}

	workers := vignetteFlags.workers
	if workers <= 0 {
		workers = cfg.VignetteWorkers
	}
	runner := &vignette.Runner{Workers: workers, Log: newLogger(cfg, cmd.ErrOrStderr())}
	results, sum, err := runner.Run(cmd.Context(), rs, vs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%s  %-28s %s\n", status, res.ID, res.Level)
		for _, f := range res.Failures {
			fmt.Fprintf(out, "      %s\n", f)
		}
	}
	fmt.Fprintf(out, "%d/%d passed (rule set %s)\n", sum.Passed, sum.Total, rs.Version)
	if sum.Failed > 0 {
		return fmt.Errorf("%d vignettes failed", sum.Failed)
	}
	return nil
}
