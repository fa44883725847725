package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

func openTestDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func TestNewDB(t *testing.T) {
	db, err := NewDB(openTestDB(t), DefaultOptions())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	// Verify tables were created by querying sqlite_master.
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		t.Fatalf("query tables: %v", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan table name: %v", err)
		}
		tables = append(tables, name)
	}

	expected := map[string]bool{
		"cases":         true,
		"change_events": true,
		"access_audit":  true,
	}
	for _, tbl := range tables {
		delete(expected, tbl)
	}
	for tbl := range expected {
		t.Errorf("expected table %q not found", tbl)
	}
}

func TestNewDB_IdempotentMigration(t *testing.T) {
	dbPath := openTestDB(t)

	// First open creates schema.
	db1, err := NewDB(dbPath, DefaultOptions())
	if err != nil {
		t.Fatalf("first NewDB: %v", err)
	}
	db1.Close()

	// Second open should not fail (IF NOT EXISTS).
	db2, err := NewDB(dbPath, Options{})
	if err != nil {
		t.Fatalf("second NewDB: %v", err)
	}
	db2.Close()
}

func TestNewDB_Pragmas(t *testing.T) {
	db, err := NewDB(openTestDB(t), Options{MaxOpenConns: 2, BusyTimeoutMS: 1234})
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	var timeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if timeout != 1234 {
		t.Errorf("busy_timeout = %d, want 1234", timeout)
	}
}

func TestNewDB_OpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "test.db")
	db, err := NewDB(path, DefaultOptions())
	if err == nil {
		db.Close()
		t.Fatal("expected error for database in a missing directory")
	}
	if !errors.Is(err, domain.ErrStoreInit) {
		t.Errorf("got %v, want ErrStoreInit", err)
	}
	if !domain.IsStorage(err) {
		t.Errorf("IsStorage(%v) = false, want true", err)
	}
}

func TestNewDB_MigrationFailure(t *testing.T) {
	path := openTestDB(t)
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// A pre-existing cases table without the indexed column breaks the
	// schema's CREATE INDEX.
	if _, err := raw.Exec(`CREATE TABLE cases (case_id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("seed table: %v", err)
	}
	raw.Close()

	db, err := NewDB(path, DefaultOptions())
	if err == nil {
		db.Close()
		t.Fatal("expected migration error")
	}
	if !errors.Is(err, domain.ErrSchemaMigration) {
		t.Errorf("got %v, want ErrSchemaMigration", err)
	}
}
