package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

// CaseRepo handles persistence for CaseRecord aggregates. The full record
// is stored as JSON; indexed columns exist only for ordering and filtering.
type CaseRepo struct{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateTx inserts a new case within an existing transaction.
func (r *CaseRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec domain.CaseRecord) error {
	const q = `INSERT INTO cases (case_id, created_at_nano, level, rule_set_version, source, record_json, updated_at_nano)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	_, err = tx.ExecContext(ctx, q,
		rec.CaseID,
		rec.CreatedAt.UnixNano(),
		string(rec.Decision.Level),
		rec.Meta.RuleSetVersion,
		rec.Meta.Source,
		string(data),
		rec.LastUpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	return nil
}

// InsertIgnoreTx inserts rec unless a case with the same ID exists. It
// reports whether a row was written.
func (r *CaseRepo) InsertIgnoreTx(ctx context.Context, tx *sql.Tx, rec domain.CaseRecord) (bool, error) {
	const q = `INSERT OR IGNORE INTO cases (case_id, created_at_nano, level, rule_set_version, source, record_json, updated_at_nano)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode case: %w", err)
	}
	res, err := tx.ExecContext(ctx, q,
		rec.CaseID,
		rec.CreatedAt.UnixNano(),
		string(rec.Decision.Level),
		rec.Meta.RuleSetVersion,
		rec.Meta.Source,
		string(data),
		rec.LastUpdatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("insert case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateTx rewrites the stored record for rec.CaseID.
func (r *CaseRepo) UpdateTx(ctx context.Context, tx *sql.Tx, rec domain.CaseRecord) error {
	const q = `UPDATE cases SET record_json = ?, updated_at_nano = ? WHERE case_id = ?`
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	res, err := tx.ExecContext(ctx, q, string(data), rec.LastUpdatedAt.UnixNano(), rec.CaseID)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrCaseNotFound
	}
	return nil
}

// GetTx loads a case inside a transaction.
func (r *CaseRepo) GetTx(ctx context.Context, tx *sql.Tx, caseID string) (*domain.CaseRecord, error) {
	return getCase(ctx, tx, caseID)
}

// GetByID loads a case outside a transaction.
func (r *CaseRepo) GetByID(ctx context.Context, db *sql.DB, caseID string) (*domain.CaseRecord, error) {
	return getCase(ctx, db, caseID)
}

// ExistsTx reports whether a case with the given ID exists.
func (r *CaseRepo) ExistsTx(ctx context.Context, tx *sql.Tx, caseID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM cases WHERE case_id = ?`, caseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check case: %w", err)
	}
	return true, nil
}

// ListRecent returns up to limit cases, newest first.
func (r *CaseRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.CaseRecord, error) {
	const q = `SELECT record_json FROM cases ORDER BY created_at_nano DESC, rowid DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	records := []domain.CaseRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		var rec domain.CaseRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode case: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of stored cases.
func (r *CaseRepo) Count(ctx context.Context, q querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return n, nil
}

func getCase(ctx context.Context, q querier, caseID string) (*domain.CaseRecord, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT record_json FROM cases WHERE case_id = ?`, caseID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCaseNotFound
		}
		return nil, fmt.Errorf("get case: %w", err)
	}
	var rec domain.CaseRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode case: %w", err)
	}
	return &rec, nil
}
