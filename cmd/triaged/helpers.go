package main

import (
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/muzzaleeni/qwazi/internal/cases"
	"github.com/muzzaleeni/qwazi/internal/config"
	"github.com/muzzaleeni/qwazi/internal/logging"
	"github.com/muzzaleeni/qwazi/internal/rules"
	"github.com/muzzaleeni/qwazi/internal/store"
)

// loadConfig resolves the config path: --config flag, then TRIAGE_CONFIG,
// then triage.yaml next to the executable or in the working directory.
// With none found, defaults and environment overrides apply.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("TRIAGE_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}
	return config.Load(path)
}

func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "triage.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("triage.yaml"); err == nil {
		return "triage.yaml"
	}
	return ""
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, w)
}

// loadRules returns the configured rule set, or the embedded one.
func loadRules(cfg *config.Config) (*rules.RuleSet, error) {
	if cfg.RulesPath == "" {
		return rules.Default()
	}
	return rules.Load(cfg.RulesPath)
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	return store.NewDB(cfg.DBPath, store.Options{
		MaxOpenConns:  cfg.MaxOpenConns,
		BusyTimeoutMS: cfg.BusyTimeoutMS,
	})
}

func newCaseStore(db *sql.DB, cfg *config.Config, log zerolog.Logger) *cases.Store {
	return cases.NewStore(db, log, cases.Options{
		DefaultLimit: cfg.RecentDefaultLimit,
		MaxLimit:     cfg.RecentMaxLimit,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
