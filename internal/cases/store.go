// Package cases implements the case record store: case creation, recent
// listings and the transactional outcome/workflow patch protocol that keeps
// cases and the change ledger in lockstep.
package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/muzzaleeni/qwazi/internal/domain"
	"github.com/muzzaleeni/qwazi/internal/metrics"
	"github.com/muzzaleeni/qwazi/internal/store"
)

// Options configure listing limits and the clock.
type Options struct {
	DefaultLimit int
	MaxLimit     int

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{DefaultLimit: 50, MaxLimit: 200}
}

// Store is the case record store. It is safe for concurrent use; all
// mutations run in IMMEDIATE transactions.
type Store struct {
	DB         *sql.DB
	CaseRepo   *store.CaseRepo
	ChangeRepo *store.ChangeRepo

	log      zerolog.Logger
	opts     Options
	validate *patchValidator
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB, log zerolog.Logger, opts Options) *Store {
	def := DefaultOptions()
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = def.DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = def.MaxLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Store{
		DB:         db,
		CaseRepo:   &store.CaseRepo{},
		ChangeRepo: &store.ChangeRepo{},
		log:        log.With().Str("component", "cases").Logger(),
		opts:       opts,
		validate:   newPatchValidator(),
	}
}

// CreateCase stores decision verbatim under a fresh case ID with workflow
// status NEW. Identical decisions always produce distinct cases.
func (s *Store) CreateCase(ctx context.Context, decision domain.DecisionResult, meta domain.CaseMeta) (domain.CaseRecord, error) {
	now := s.opts.Now().UTC()
	if meta.RuleSetVersion == "" {
		meta.RuleSetVersion = decision.RuleSetVersion
	}
	creator := meta.CreatedBy
	if creator == "" {
		creator = "system"
	}

	rec := domain.CaseRecord{
		CaseID:        s.opts.NewID(),
		CreatedAt:     now,
		Meta:          meta,
		Decision:      decision,
		Workflow:      domain.Workflow{Status: domain.StatusNew, UpdatedAt: now, UpdatedBy: creator},
		LastUpdatedBy: creator,
		LastUpdatedAt: now,
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CaseRecord{}, domain.WrapError(domain.ErrStoreWrite, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := s.CaseRepo.CreateTx(ctx, tx, rec); err != nil {
		return domain.CaseRecord{}, domain.WrapError(domain.ErrStoreWrite, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.CaseRecord{}, domain.WrapError(domain.ErrStoreWrite, fmt.Errorf("commit: %w", err))
	}

	metrics.RecordCaseCreated()
	s.log.Info().
		Str("case_id", rec.CaseID).
		Str("level", string(decision.Level)).
		Str("rule_set_version", meta.RuleSetVersion).
		Msg("case created")
	return rec, nil
}

// Get returns one case.
func (s *Store) Get(ctx context.Context, caseID string) (*domain.CaseRecord, error) {
	rec, err := s.CaseRepo.GetByID(ctx, s.DB, caseID)
	if err != nil {
		return nil, storageErr(domain.ErrStoreQuery, err)
	}
	return rec, nil
}

// GetRecent returns the newest cases first. A non-positive limit uses the
// default; larger limits are clamped to the maximum.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]domain.CaseRecord, error) {
	recs, err := s.CaseRepo.ListRecent(ctx, s.DB, s.ClampLimit(limit))
	if err != nil {
		return nil, storageErr(domain.ErrStoreQuery, err)
	}
	return recs, nil
}

// RecentChanges returns the newest ledger entries across all cases.
func (s *Store) RecentChanges(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	events, err := s.ChangeRepo.ListRecent(ctx, s.DB, s.ClampLimit(limit))
	if err != nil {
		return nil, storageErr(domain.ErrStoreQuery, err)
	}
	return events, nil
}

// ChangesForCase returns a case's ledger entries in commit order. It
// reports NotFound for an unknown case.
func (s *Store) ChangesForCase(ctx context.Context, caseID string) ([]domain.ChangeEvent, error) {
	if _, err := s.Get(ctx, caseID); err != nil {
		return nil, err
	}
	events, err := s.ChangeRepo.ListByCase(ctx, s.DB, caseID)
	if err != nil {
		return nil, storageErr(domain.ErrStoreQuery, err)
	}
	return events, nil
}

// VerifyLedger recomputes the change ledger hash chain and returns the
// number of verified entries.
func (s *Store) VerifyLedger(ctx context.Context) (int, error) {
	n, err := s.ChangeRepo.Verify(ctx, s.DB)
	if err != nil {
		s.log.Error().Err(err).Int("verified", n).Msg("ledger verification failed")
		return n, storageErr(domain.ErrStoreQuery, err)
	}
	return n, nil
}

// PatchOutcome merges patch into the case's outcome and appends one
// OUTCOME_UPDATE ledger entry, atomically. The entry records the fields
// as requested; its after snapshot holds the normalized values.
func (s *Store) PatchOutcome(ctx context.Context, caseID string, patch domain.OutcomePatch, editor string) (domain.PatchResult, error) {
	ct := domain.ChangeOutcomeUpdate
	editor, err := s.validate.editor(editor)
	if err != nil {
		return s.rejected(ct, err)
	}
	change, err := s.validate.outcome(patch)
	if err != nil {
		return s.rejected(ct, err)
	}
	raw, err := patchJSON(outcomeRequest(patch))
	if err != nil {
		return s.rejected(ct, domain.WrapError(domain.ErrValidation, err))
	}

	return s.apply(ctx, caseID, editor, ct, raw, func(rec *domain.CaseRecord, ts time.Time) {
		o := rec.Outcome
		if o == nil {
			o = &domain.Outcome{}
		} else {
			cp := *o
			o = &cp
		}
		change.CareSought.Apply(&o.CareSought)
		change.CareTimeHours.Apply(&o.CareTimeHours)
		change.CareType.Apply(&o.CareType)
		change.Resolved.Apply(&o.Resolved)
		change.Notes.Apply(&o.Notes)
		o.UpdatedAt, o.UpdatedBy = ts, editor
		rec.Outcome = o
	})
}

// PatchWorkflow merges patch into the case's workflow and appends one
// WORKFLOW_UPDATE ledger entry, atomically. Any status may follow any
// other; transitions outside the conventional flow are logged.
func (s *Store) PatchWorkflow(ctx context.Context, caseID string, patch domain.WorkflowPatch, editor string) (domain.PatchResult, error) {
	ct := domain.ChangeWorkflowUpdate
	editor, err := s.validate.editor(editor)
	if err != nil {
		return s.rejected(ct, err)
	}
	change, err := s.validate.workflow(patch)
	if err != nil {
		return s.rejected(ct, err)
	}
	raw, err := patchJSON(workflowRequest(patch))
	if err != nil {
		return s.rejected(ct, domain.WrapError(domain.ErrValidation, err))
	}

	return s.apply(ctx, caseID, editor, ct, raw, func(rec *domain.CaseRecord, ts time.Time) {
		w := &rec.Workflow
		if change.Status.IsSet() {
			from, to := w.Status, change.Status.Value()
			if !IsConventionalTransition(from, to) {
				s.log.Warn().
					Str("case_id", rec.CaseID).
					Str("editor", editor).
					Str("from", string(from)).
					Str("to", string(to)).
					Msg("workflow status override")
			}
			w.Status = to
		}
		change.Owner.Apply(&w.Owner)
		change.FollowUpDueAt.Apply(&w.FollowUpDueAt)
		change.LastContactAt.Apply(&w.LastContactAt)
		w.UpdatedAt, w.UpdatedBy = ts, editor
	})
}

// apply runs the shared patch protocol in one transaction: read, merge,
// write back, append the ledger entry, commit.
func (s *Store) apply(ctx context.Context, caseID, editor string, ct domain.ChangeType, raw json.RawMessage,
	merge func(rec *domain.CaseRecord, ts time.Time)) (domain.PatchResult, error) {

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return s.failed(ct, domain.WrapError(domain.ErrStoreWrite, fmt.Errorf("begin tx: %w", err)))
	}
	defer tx.Rollback()

	rec, err := s.CaseRepo.GetTx(ctx, tx, caseID)
	if err != nil {
		return s.failed(ct, storageErr(domain.ErrStoreQuery, err))
	}

	ts, err := s.ChangeRepo.NextTimestampTx(ctx, tx, s.opts.Now())
	if err != nil {
		return s.failed(ct, domain.WrapError(domain.ErrStoreQuery, err))
	}

	before := rec.Snapshot()
	merge(rec, ts)
	rec.LastUpdatedBy, rec.LastUpdatedAt = editor, ts
	after := rec.Snapshot()

	if err := s.CaseRepo.UpdateTx(ctx, tx, *rec); err != nil {
		return s.failed(ct, storageErr(domain.ErrStoreWrite, err))
	}

	event := domain.ChangeEvent{
		ChangeID:   s.opts.NewID(),
		CaseID:     caseID,
		Timestamp:  ts,
		Editor:     editor,
		ChangeType: ct,
		Patch:      raw,
		Before:     before,
		After:      after,
	}
	if err := s.ChangeRepo.AppendTx(ctx, tx, &event); err != nil {
		return s.failed(ct, domain.WrapError(domain.ErrStoreWrite, err))
	}

	if err := tx.Commit(); err != nil {
		return s.failed(ct, domain.WrapError(domain.ErrStoreWrite, fmt.Errorf("commit: %w", err)))
	}

	metrics.RecordPatch(string(ct), "ok")
	s.log.Info().
		Str("case_id", caseID).
		Str("change_id", event.ChangeID).
		Str("change_type", string(ct)).
		Str("editor", editor).
		Msg("case patched")
	return domain.PatchResult{Before: before, After: after, Change: event}, nil
}

func (s *Store) rejected(ct domain.ChangeType, err error) (domain.PatchResult, error) {
	metrics.RecordPatch(string(ct), "validation")
	s.log.Debug().Err(err).Str("change_type", string(ct)).Msg("patch rejected")
	return domain.PatchResult{}, err
}

func (s *Store) failed(ct domain.ChangeType, err error) (domain.PatchResult, error) {
	result := "error"
	if domain.IsNotFound(err) {
		result = "not_found"
	} else {
		s.log.Error().Err(err).Str("change_type", string(ct)).Msg("patch failed")
	}
	metrics.RecordPatch(string(ct), result)
	return domain.PatchResult{}, err
}

// ClampLimit applies the default to a non-positive limit and caps it at
// the configured maximum.
func (s *Store) ClampLimit(limit int) int {
	if limit <= 0 {
		return s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		return s.opts.MaxLimit
	}
	return limit
}

// storageErr keeps domain errors as they are and wraps anything else in
// base.
func storageErr(base *domain.Error, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.WrapError(base, err)
}
