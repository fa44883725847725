// Package legacy migrates case and change records exported by the earlier
// file-based deployment into the SQLite store.
package legacy

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/muzzaleeni/qwazi/internal/domain"
	"github.com/muzzaleeni/qwazi/internal/metrics"
	"github.com/muzzaleeni/qwazi/internal/store"
)

// importEditor is recorded when a legacy record names no editor.
const importEditor = "legacy-import"

// changeNamespace seeds the UUIDv5 IDs given to change lines that carry no
// ID of their own.
var changeNamespace = uuid.MustParse("6f1c7d2e-3b8a-5c4e-9f10-2a7b8c9d0e1f")

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 4 << 20

// Result summarizes one import run.
type Result struct {
	ImportedCases   int `json:"imported_cases"`
	ImportedChanges int `json:"imported_changes"`
	Skipped         int `json:"skipped"`
}

// Importer loads legacy JSONL exports.
type Importer struct {
	DB         *sql.DB
	CaseRepo   *store.CaseRepo
	ChangeRepo *store.ChangeRepo

	log zerolog.Logger
}

// NewImporter creates an Importer over an open database.
func NewImporter(db *sql.DB, log zerolog.Logger) *Importer {
	return &Importer{
		DB:         db,
		CaseRepo:   &store.CaseRepo{},
		ChangeRepo: &store.ChangeRepo{},
		log:        log.With().Str("component", "legacy").Logger(),
	}
}

// ImportFiles opens the given JSONL files and calls ImportIfEmpty. An
// empty path means no source of that kind.
func (im *Importer) ImportFiles(ctx context.Context, casesPath, changesPath string) (Result, error) {
	var caseSrc, changeSrc io.Reader
	if casesPath != "" {
		f, err := os.Open(casesPath)
		if err != nil {
			return Result{}, domain.WrapError(domain.ErrImportFailed, fmt.Errorf("open cases file: %w", err))
		}
		defer f.Close()
		caseSrc = f
	}
	if changesPath != "" {
		f, err := os.Open(changesPath)
		if err != nil {
			return Result{}, domain.WrapError(domain.ErrImportFailed, fmt.Errorf("open changes file: %w", err))
		}
		defer f.Close()
		changeSrc = f
	}
	return im.ImportIfEmpty(ctx, caseSrc, changeSrc)
}

// ImportIfEmpty imports legacy cases and changes in one transaction, but
// only when the case table is empty. Rows are inserted with conflict-ignore
// semantics keyed by case ID and change ID, so a rerun never duplicates.
// Either source may be nil.
func (im *Importer) ImportIfEmpty(ctx context.Context, caseSrc, changeSrc io.Reader) (Result, error) {
	var res Result

	cases, skipped, err := readLines(caseSrc, parseCase)
	if err != nil {
		return res, domain.WrapError(domain.ErrImportFailed, fmt.Errorf("read cases: %w", err))
	}
	res.Skipped += skipped

	changes, skipped, err := readLines(changeSrc, parseChange)
	if err != nil {
		return res, domain.WrapError(domain.ErrImportFailed, fmt.Errorf("read changes: %w", err))
	}
	res.Skipped += skipped
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Timestamp.Before(changes[j].Timestamp)
	})

	tx, err := im.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, domain.WrapError(domain.ErrImportFailed, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	n, err := im.CaseRepo.Count(ctx, tx)
	if err != nil {
		return Result{}, domain.WrapError(domain.ErrImportFailed, err)
	}
	if n > 0 {
		im.log.Info().Int("existing_cases", n).Msg("case table not empty, legacy import skipped")
		return Result{}, nil
	}

	for _, rec := range cases {
		wrote, err := im.CaseRepo.InsertIgnoreTx(ctx, tx, rec)
		if err != nil {
			return Result{}, domain.WrapError(domain.ErrImportFailed, err)
		}
		if wrote {
			res.ImportedCases++
		} else {
			res.Skipped++
		}
	}

	for i := range changes {
		e := &changes[i]
		exists, err := im.CaseRepo.ExistsTx(ctx, tx, e.CaseID)
		if err != nil {
			return Result{}, domain.WrapError(domain.ErrImportFailed, err)
		}
		if !exists {
			im.log.Warn().Str("change_id", e.ChangeID).Str("case_id", e.CaseID).Msg("legacy change references unknown case")
			res.Skipped++
			continue
		}
		wrote, err := im.ChangeRepo.InsertIgnoreTx(ctx, tx, e)
		if err != nil {
			return Result{}, domain.WrapError(domain.ErrImportFailed, err)
		}
		if wrote {
			res.ImportedChanges++
		} else {
			res.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, domain.WrapError(domain.ErrImportFailed, fmt.Errorf("commit: %w", err))
	}

	metrics.RecordImport("case", res.ImportedCases)
	metrics.RecordImport("change", res.ImportedChanges)
	metrics.RecordImport("skipped", res.Skipped)
	im.log.Info().
		Int("imported_cases", res.ImportedCases).
		Int("imported_changes", res.ImportedChanges).
		Int("skipped", res.Skipped).
		Msg("legacy import complete")
	return res, nil
}

// readLines parses every non-blank line of r. Lines that fail to parse are
// counted as skipped rather than aborting the import.
func readLines[T any](r io.Reader, parse func([]byte) (T, error)) ([]T, int, error) {
	if r == nil {
		return nil, 0, nil
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []T
	skipped := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		v, err := parse(line)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped, sc.Err()
}

// legacyCase accepts both the current field names and the older aliases.
type legacyCase struct {
	ID            string                 `json:"id"`
	CaseID        string                 `json:"case_id"`
	CreatedAt     json.RawMessage        `json:"created_at"`
	Timestamp     json.RawMessage        `json:"timestamp"`
	Decision      *domain.DecisionResult `json:"decision"`
	Result        *domain.DecisionResult `json:"result"`
	Meta          domain.CaseMeta        `json:"meta"`
	Outcome       *domain.Outcome        `json:"outcome"`
	Workflow      *domain.Workflow       `json:"workflow"`
	Resolved      *bool                  `json:"resolved"`
	LastUpdatedBy string                 `json:"last_updated_by"`
	LastUpdatedAt json.RawMessage        `json:"last_updated_at"`
}

func parseCase(line []byte) (domain.CaseRecord, error) {
	var lc legacyCase
	if err := json.Unmarshal(line, &lc); err != nil {
		return domain.CaseRecord{}, err
	}

	id := firstNonEmpty(lc.CaseID, lc.ID)
	if id == "" {
		return domain.CaseRecord{}, fmt.Errorf("case has no id")
	}
	created, err := parseTime(firstRaw(lc.CreatedAt, lc.Timestamp))
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("case %s: %w", id, err)
	}
	decision := lc.Decision
	if decision == nil {
		decision = lc.Result
	}
	if decision == nil {
		return domain.CaseRecord{}, fmt.Errorf("case %s has no decision", id)
	}
	decision.Level = normalizeLevel(decision.Level)
	decision.IsEmergency = decision.Level == domain.LevelEmergency
	if decision.Uncertainty.Reasons == nil {
		decision.Uncertainty.Reasons = []domain.ReasonCode{}
	}

	if lc.Meta.Source == "" {
		lc.Meta.Source = "legacy"
	}
	if lc.Meta.RuleSetVersion == "" {
		lc.Meta.RuleSetVersion = decision.RuleSetVersion
	}

	updatedAt := created
	if t, err := parseTime(lc.LastUpdatedAt); err == nil {
		updatedAt = t
	}
	updatedBy := firstNonEmpty(lc.LastUpdatedBy, importEditor)

	rec := domain.CaseRecord{
		CaseID:        id,
		CreatedAt:     created,
		Meta:          lc.Meta,
		Decision:      *decision,
		Outcome:       lc.Outcome,
		LastUpdatedBy: updatedBy,
		LastUpdatedAt: updatedAt,
	}

	if lc.Workflow != nil && lc.Workflow.Status != "" {
		rec.Workflow = *lc.Workflow
	} else {
		resolved := lc.Resolved != nil && *lc.Resolved
		if !resolved && lc.Outcome != nil && lc.Outcome.Resolved != nil {
			resolved = *lc.Outcome.Resolved
		}
		status := domain.StatusNew
		if resolved {
			status = domain.StatusClosed
		}
		rec.Workflow = domain.Workflow{Status: status, UpdatedAt: updatedAt, UpdatedBy: updatedBy}
	}
	return rec, nil
}

type legacyChange struct {
	ChangeID   string              `json:"change_id"`
	ID         string              `json:"id"`
	CaseID     string              `json:"case_id"`
	Timestamp  json.RawMessage     `json:"timestamp"`
	CreatedAt  json.RawMessage     `json:"created_at"`
	Editor     string              `json:"editor"`
	UpdatedBy  string              `json:"updated_by"`
	ChangeType string              `json:"change_type"`
	Type       string              `json:"type"`
	Patch      json.RawMessage     `json:"patch"`
	Before     domain.CaseSnapshot `json:"before"`
	After      domain.CaseSnapshot `json:"after"`
}

func parseChange(line []byte) (domain.ChangeEvent, error) {
	var lc legacyChange
	if err := json.Unmarshal(line, &lc); err != nil {
		return domain.ChangeEvent{}, err
	}
	if lc.CaseID == "" {
		return domain.ChangeEvent{}, fmt.Errorf("change has no case_id")
	}
	ts, err := parseTime(firstRaw(lc.Timestamp, lc.CreatedAt))
	if err != nil {
		return domain.ChangeEvent{}, err
	}
	ct, ok := normalizeChangeType(firstNonEmpty(lc.ChangeType, lc.Type))
	if !ok {
		return domain.ChangeEvent{}, fmt.Errorf("change for case %s has unknown type", lc.CaseID)
	}

	id := firstNonEmpty(lc.ChangeID, lc.ID)
	if id == "" {
		id = uuid.NewSHA1(changeNamespace, line).String()
	}

	patch := lc.Patch
	if len(patch) == 0 || bytes.Equal(patch, []byte("null")) {
		patch = json.RawMessage("{}")
	} else {
		var buf bytes.Buffer
		if err := json.Compact(&buf, patch); err != nil {
			return domain.ChangeEvent{}, err
		}
		patch = buf.Bytes()
	}

	return domain.ChangeEvent{
		ChangeID:   id,
		CaseID:     lc.CaseID,
		Timestamp:  ts,
		Editor:     firstNonEmpty(lc.Editor, lc.UpdatedBy, importEditor),
		ChangeType: ct,
		Patch:      patch,
		Before:     lc.Before,
		After:      lc.After,
	}, nil
}

// parseTime accepts RFC 3339 strings and Unix timestamps in seconds or
// milliseconds.
func parseTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("timestamp missing")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %s: %w", raw, err)
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	return time.Unix(int64(n), 0).UTC(), nil
}

func normalizeLevel(l domain.Level) domain.Level {
	switch strings.ToUpper(string(l)) {
	case "EMERGENCY", "EMERGENCY_NOW":
		return domain.LevelEmergency
	case "URGENT", "URGENT_TODAY":
		return domain.LevelUrgent
	case "ROUTINE", "ROUTINE_FOLLOW_UP":
		return domain.LevelRoutine
	}
	return l
}

func normalizeChangeType(s string) (domain.ChangeType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OUTCOME_UPDATE", "OUTCOME":
		return domain.ChangeOutcomeUpdate, true
	case "WORKFLOW_UPDATE", "WORKFLOW":
		return domain.ChangeWorkflowUpdate, true
	}
	return "", false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if len(bytes.TrimSpace(v)) > 0 {
			return v
		}
	}
	return nil
}
