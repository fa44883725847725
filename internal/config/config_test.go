package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9800" {
		t.Errorf("ListenAddr = %q, want :9800", cfg.ListenAddr)
	}
	if cfg.DBPath != "triage.db" {
		t.Errorf("DBPath = %q, want triage.db", cfg.DBPath)
	}
	if cfg.RecentDefaultLimit != 50 || cfg.RecentMaxLimit != 200 {
		t.Errorf("limits = %d/%d, want 50/200", cfg.RecentDefaultLimit, cfg.RecentMaxLimit)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Errorf("RateLimitPerMinute = %d, want 60", cfg.RateLimitPerMinute)
	}
	if cfg.DenialAuditPerMin != 30 || cfg.DenialAuditBurst != 10 {
		t.Errorf("denial audit = %d/%d, want 30/10", cfg.DenialAuditPerMin, cfg.DenialAuditBurst)
	}
	if cfg.ResolvedAuthMode() != AuthDevelopment {
		t.Errorf("ResolvedAuthMode = %q, want development", cfg.ResolvedAuthMode())
	}
	if cfg.ShutdownTimeout().Seconds() != 10 {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout())
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, "triage.yaml", `
listen_addr: "127.0.0.1:8080"
db_path: /var/lib/triage/cases.db
log_format: console
recent_max_limit: 100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DBPath != "/var/lib/triage/cases.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.LogFormat != "console" {
		t.Errorf("LogFormat = %q, want console", cfg.LogFormat)
	}
	if cfg.RecentMaxLimit != 100 {
		t.Errorf("RecentMaxLimit = %d, want 100", cfg.RecentMaxLimit)
	}
	if cfg.RecentDefaultLimit != 50 {
		t.Errorf("RecentDefaultLimit = %d, want default 50", cfg.RecentDefaultLimit)
	}
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeConfig(t, "triage.json", `{"db_path": "/tmp/x.db", "max_open_conns": 2}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxOpenConns != 2 {
		t.Errorf("MaxOpenConns = %d, want 2", cfg.MaxOpenConns)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRIAGE_DB_PATH", "/env/cases.db")
	t.Setenv("TRIAGE_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("TRIAGE_JWT_SECRET", "0123456789abcdef0123")

	path := writeConfig(t, "triage.yaml", "db_path: /file/cases.db\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/env/cases.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if cfg.RateLimitPerMinute != 5 {
		t.Errorf("RateLimitPerMinute = %d, want 5", cfg.RateLimitPerMinute)
	}
	if cfg.ResolvedAuthMode() != AuthJWT {
		t.Errorf("ResolvedAuthMode = %q, want jwt", cfg.ResolvedAuthMode())
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/triage.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, "bad.yaml", `
db_path: ""
recent_default_limit: 300
recent_max_limit: 200
log_level: chatty
log_format: xml
auth_mode: jwt
jwt_secret: short
denial_audit_burst: 0
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	for _, want := range []string{"db_path", "recent_default_limit", "log_level", "log_format", "jwt_secret", "denial_audit_burst"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}

func TestValidate_UnknownAuthMode(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.AuthMode = "oauth"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "auth_mode") {
		t.Fatalf("expected auth_mode error, got %v", err)
	}
}
