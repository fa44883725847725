package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

// ChangeRepo handles the append-only change ledger. Every row carries the
// hash of its predecessor, so any edit or deletion of a committed row
// breaks the chain.
type ChangeRepo struct{}

// changeRow is the stored form of a ChangeEvent. The hash covers exactly
// these columns.
type changeRow struct {
	ChangeID   string
	CaseID     string
	TSNano     int64
	Editor     string
	ChangeType string
	Patch      string
	Before     string
	After      string
	PrevHash   string
	Hash       string
}

// chainHash computes sha256(prev ‖ columns) with a unit separator between
// fields.
func chainHash(prev string, r changeRow) string {
	h := sha256.New()
	for _, part := range []string{
		prev, r.ChangeID, r.CaseID, strconv.FormatInt(r.TSNano, 10),
		r.Editor, r.ChangeType, r.Patch, r.Before, r.After,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NextTimestampTx returns max(now, latest recorded timestamp), so ledger
// time never moves backwards even if the wall clock does.
func (r *ChangeRepo) NextTimestampTx(ctx context.Context, tx *sql.Tx, now time.Time) (time.Time, error) {
	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ts_nano), 0) FROM change_events`).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("read last timestamp: %w", err)
	}
	now = now.UTC()
	if now.UnixNano() < last {
		return time.Unix(0, last).UTC(), nil
	}
	return now, nil
}

// AppendTx chains e onto the ledger within an existing transaction. It
// fills in PrevHash and Hash.
func (r *ChangeRepo) AppendTx(ctx context.Context, tx *sql.Tx, e *domain.ChangeEvent) error {
	row, err := r.prepareTx(ctx, tx, e)
	if err != nil {
		return err
	}
	const q = `INSERT INTO change_events (change_id, case_id, ts_nano, editor, change_type, patch_json, before_json, after_json, prev_hash, hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, row.args()...); err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	e.PrevHash, e.Hash = row.PrevHash, row.Hash
	return nil
}

// InsertIgnoreTx appends e unless a change with the same ID exists, keeping
// the event's own timestamp. It reports whether a row was written.
func (r *ChangeRepo) InsertIgnoreTx(ctx context.Context, tx *sql.Tx, e *domain.ChangeEvent) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM change_events WHERE change_id = ?`, e.ChangeID).Scan(&one)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("check change: %w", err)
	}
	if err := r.AppendTx(ctx, tx, e); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ChangeRepo) prepareTx(ctx context.Context, tx *sql.Tx, e *domain.ChangeEvent) (changeRow, error) {
	before, err := json.Marshal(e.Before)
	if err != nil {
		return changeRow{}, fmt.Errorf("encode before: %w", err)
	}
	after, err := json.Marshal(e.After)
	if err != nil {
		return changeRow{}, fmt.Errorf("encode after: %w", err)
	}
	patch := string(e.Patch)
	if patch == "" {
		patch = "{}"
	}

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM change_events ORDER BY id DESC LIMIT 1`).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return changeRow{}, fmt.Errorf("read chain head: %w", err)
	}

	row := changeRow{
		ChangeID:   e.ChangeID,
		CaseID:     e.CaseID,
		TSNano:     e.Timestamp.UnixNano(),
		Editor:     e.Editor,
		ChangeType: string(e.ChangeType),
		Patch:      patch,
		Before:     string(before),
		After:      string(after),
		PrevHash:   prev,
	}
	row.Hash = chainHash(prev, row)
	return row, nil
}

func (r changeRow) args() []any {
	return []any{r.ChangeID, r.CaseID, r.TSNano, r.Editor, r.ChangeType,
		r.Patch, r.Before, r.After, r.PrevHash, r.Hash}
}

const changeColumns = `change_id, case_id, ts_nano, editor, change_type, patch_json, before_json, after_json, prev_hash, hash`

// ListRecent returns up to limit changes across all cases, newest first.
func (r *ChangeRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.ChangeEvent, error) {
	q := `SELECT ` + changeColumns + ` FROM change_events ORDER BY id DESC LIMIT ?`
	return queryChanges(ctx, db, q, limit)
}

// ListByCase returns every change for caseID in commit order.
func (r *ChangeRepo) ListByCase(ctx context.Context, db *sql.DB, caseID string) ([]domain.ChangeEvent, error) {
	q := `SELECT ` + changeColumns + ` FROM change_events WHERE case_id = ? ORDER BY id ASC`
	return queryChanges(ctx, db, q, caseID)
}

// Count returns the number of ledger entries.
func (r *ChangeRepo) Count(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count changes: %w", err)
	}
	return n, nil
}

// Verify walks the whole ledger in commit order and recomputes the hash
// chain. It returns the number of entries checked and ErrLedgerTampered
// naming the first entry whose link or hash does not match.
func (r *ChangeRepo) Verify(ctx context.Context, db *sql.DB) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+changeColumns+` FROM change_events ORDER BY id ASC`)
	if err != nil {
		return 0, fmt.Errorf("verify ledger: %w", err)
	}
	defer rows.Close()

	prev := ""
	checked := 0
	for rows.Next() {
		row, err := scanChangeRow(rows)
		if err != nil {
			return checked, err
		}
		if row.PrevHash != prev {
			return checked, domain.NewError(domain.ErrLedgerTampered,
				fmt.Sprintf("change %s: previous-hash link broken", row.ChangeID))
		}
		if chainHash(prev, row) != row.Hash {
			return checked, domain.NewError(domain.ErrLedgerTampered,
				fmt.Sprintf("change %s: content hash mismatch", row.ChangeID))
		}
		prev = row.Hash
		checked++
	}
	return checked, rows.Err()
}

func queryChanges(ctx context.Context, db *sql.DB, q string, args ...any) ([]domain.ChangeEvent, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	events := []domain.ChangeEvent{}
	for rows.Next() {
		row, err := scanChangeRow(rows)
		if err != nil {
			return nil, err
		}
		e, err := row.event()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanChangeRow(rows *sql.Rows) (changeRow, error) {
	var r changeRow
	if err := rows.Scan(&r.ChangeID, &r.CaseID, &r.TSNano, &r.Editor, &r.ChangeType,
		&r.Patch, &r.Before, &r.After, &r.PrevHash, &r.Hash); err != nil {
		return changeRow{}, fmt.Errorf("scan change: %w", err)
	}
	return r, nil
}

func (r changeRow) event() (domain.ChangeEvent, error) {
	e := domain.ChangeEvent{
		ChangeID:   r.ChangeID,
		CaseID:     r.CaseID,
		Timestamp:  time.Unix(0, r.TSNano).UTC(),
		Editor:     r.Editor,
		ChangeType: domain.ChangeType(r.ChangeType),
		Patch:      json.RawMessage(r.Patch),
		PrevHash:   r.PrevHash,
		Hash:       r.Hash,
	}
	if err := json.Unmarshal([]byte(r.Before), &e.Before); err != nil {
		return e, fmt.Errorf("decode change %s before: %w", r.ChangeID, err)
	}
	if err := json.Unmarshal([]byte(r.After), &e.After); err != nil {
		return e, fmt.Errorf("decode change %s after: %w", r.ChangeID, err)
	}
	return e, nil
}
