package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

// AuditRepo handles persistence for AccessRecord entries.
type AuditRepo struct{}

// Record inserts an access record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AccessRecord) error {
	const q = `INSERT INTO access_audit (id, actor, action, case_id, outcome, detail, severity, created_nano)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.Actor,
		rec.Action,
		rec.CaseID,
		string(rec.Outcome),
		rec.Detail,
		rec.Severity,
		rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByActor returns all access records for an actor, oldest first.
func (r *AuditRepo) ListByActor(ctx context.Context, db *sql.DB, actor string) ([]domain.AccessRecord, error) {
	const q = `SELECT id, actor, action, case_id, outcome, detail, severity, created_nano
FROM access_audit
WHERE actor = ?
ORDER BY created_nano ASC, rowid ASC`
	return r.query(ctx, db, q, actor)
}

// ListRecent returns up to limit access records, newest first.
func (r *AuditRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.AccessRecord, error) {
	const q = `SELECT id, actor, action, case_id, outcome, detail, severity, created_nano
FROM access_audit
ORDER BY created_nano DESC, rowid DESC
LIMIT ?`
	return r.query(ctx, db, q, limit)
}

func (r *AuditRepo) query(ctx context.Context, db *sql.DB, q string, args ...any) ([]domain.AccessRecord, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	records := []domain.AccessRecord{}
	for rows.Next() {
		var a domain.AccessRecord
		var outcome string
		var created int64
		if err := rows.Scan(&a.ID, &a.Actor, &a.Action, &a.CaseID, &outcome,
			&a.Detail, &a.Severity, &created); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		a.Outcome = domain.AccessOutcome(outcome)
		a.CreatedAt = time.Unix(0, created).UTC()
		records = append(records, a)
	}
	return records, rows.Err()
}
