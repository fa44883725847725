package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muzzaleeni/qwazi/internal/auth"
	"github.com/muzzaleeni/qwazi/internal/guard"
	"github.com/muzzaleeni/qwazi/internal/ipc"
	"github.com/muzzaleeni/qwazi/internal/legacy"
	"github.com/muzzaleeni/qwazi/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg, cmd.ErrOrStderr())

	rs, err := loadRules(cfg)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if cfg.LegacyCasesPath != "" || cfg.LegacyChangesPath != "" {
		im := legacy.NewImporter(db, log)
		if _, err := im.ImportFiles(cmd.Context(), cfg.LegacyCasesPath, cfg.LegacyChangesPath); err != nil {
			return fmt.Errorf("legacy import: %w", err)
		}
	}

	authn, err := auth.New(cfg.ResolvedAuthMode(), []byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		return err
	}
	if authn.Mode() == auth.ModeDevelopment {
		log.Warn().Msg("development auth: actors are taken from the " + auth.ActorHeader + " header")
	}

	handler := &ipc.Handler{
		Rules: rs,
		Cases: newCaseStore(db, cfg, log),
		Guard: guard.NewGuard(db, log, guard.Config{
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			Burst:              cfg.RateLimitBurst,
			DenialsPerMinute:   cfg.DenialAuditPerMin,
			DenialBurst:        cfg.DenialAuditBurst,
		}),
		Auth:    authn,
		Log:     logging.Component(log, "http"),
		Version: version,
	}
	srv := ipc.NewServer(handler, cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("db_path", cfg.DBPath).
		Str("rule_set_version", rs.Version).
		Str("auth_mode", authn.Mode()).
		Msg("triage service listening")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
