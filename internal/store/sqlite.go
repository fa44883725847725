// Package store provides SQLite-backed persistence for case records, the
// change ledger and the access audit log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS cases (
	case_id          TEXT PRIMARY KEY,
	created_at_nano  INTEGER NOT NULL,
	level            TEXT NOT NULL,
	rule_set_version TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	record_json      TEXT NOT NULL,
	updated_at_nano  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cases_created ON cases(created_at_nano);

CREATE TABLE IF NOT EXISTS change_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	change_id   TEXT NOT NULL UNIQUE,
	case_id     TEXT NOT NULL REFERENCES cases(case_id),
	ts_nano     INTEGER NOT NULL,
	editor      TEXT NOT NULL,
	change_type TEXT NOT NULL,
	patch_json  TEXT NOT NULL DEFAULT '{}',
	before_json TEXT NOT NULL DEFAULT '{}',
	after_json  TEXT NOT NULL DEFAULT '{}',
	prev_hash   TEXT NOT NULL DEFAULT '',
	hash        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_case ON change_events(case_id, id);

CREATE TABLE IF NOT EXISTS access_audit (
	id           TEXT PRIMARY KEY,
	actor        TEXT NOT NULL DEFAULT '',
	action       TEXT NOT NULL,
	case_id      TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	detail       TEXT NOT NULL DEFAULT '',
	severity     TEXT NOT NULL DEFAULT 'info',
	created_nano INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON access_audit(actor, created_nano);
`

// Options tune the connection pool and SQLite locking.
type Options struct {
	MaxOpenConns  int
	BusyTimeoutMS int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{MaxOpenConns: 4, BusyTimeoutMS: 5000}
}

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration. Write transactions begin IMMEDIATE, so
// the write lock is taken at BEGIN and read-modify-write sequences on the
// same case serialize.
func NewDB(path string, opts Options) (*sql.DB, error) {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultOptions().MaxOpenConns
	}
	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = DefaultOptions().BusyTimeoutMS
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeoutMS))
	q.Set("_txlock", "immediate")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreInit, fmt.Errorf("open database: %w", err))
	}

	// WAL allows concurrent readers; writers still queue on the file lock.
	db.SetMaxOpenConns(opts.MaxOpenConns)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, domain.WrapError(domain.ErrStoreInit, fmt.Errorf("open database %s: %w", path, err))
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, domain.WrapError(domain.ErrSchemaMigration, fmt.Errorf("migrate schema: %w", err))
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
